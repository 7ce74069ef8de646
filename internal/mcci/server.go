package mcci

import (
	"time"

	"github.com/ifreecarve/mccibus/internal/bank"
	"github.com/ifreecarve/mccibus/internal/dispatch"
	"github.com/ifreecarve/mccibus/internal/metrics"
	"github.com/ifreecarve/mccibus/internal/quota"
)

// Settings configures a Server (§6 "Server configuration").
type Settings struct {
	MyNodeAddress      uint32
	MaxLocalRequests   int32
	MaxRemoteRequests  int32
	BankSizeHost       uint32
	BankSizeVar        uint32
	BankSizeHostVar    uint32
	BankSizeVarRev     uint32
	BankSizeHostVarRev uint32
}

// Server binds the six pattern banks, the shared quota ledger, and the
// external collaborators, and exposes the ingest API of §6.
type Server struct {
	settings Settings
	schema   Schema
	revs     RevisionSet
	working  WorkingSet
	clock    Clock

	ledger *quota.Ledger
	banks  *dispatch.Banks
	engine *dispatch.Engine
}

// NewServer constructs a Server with fresh, empty banks.
func NewServer(settings Settings, schema Schema, revs RevisionSet, working WorkingSet, clock Clock) *Server {
	ledger := quota.New(settings.MaxLocalRequests, settings.MaxRemoteRequests)
	banks := &dispatch.Banks{
		All:        bank.NewAll(ledger),
		Host:       bank.NewHost(settings.BankSizeHost, ledger),
		Var:        bank.NewVar(settings.BankSizeVar, ledger),
		HostVar:    bank.NewHostVar(settings.BankSizeHostVar, ledger),
		VarRev:     bank.NewVarRev(settings.BankSizeVarRev, ledger),
		HostVarRev: bank.NewHostVarRev(settings.BankSizeHostVarRev, ledger),
	}
	return &Server{
		settings: settings,
		schema:   schema,
		revs:     revs,
		working:  working,
		clock:    clock,
		ledger:   ledger,
		banks:    banks,
		engine:   dispatch.NewEngine(banks, settings.MyNodeAddress),
	}
}

// MyNodeAddress returns the node address this Server was configured with,
// so collaborators outside this package can tell local traffic from
// remote without duplicating isRemote's logic.
func (s *Server) MyNodeAddress() uint32 {
	return s.settings.MyNodeAddress
}

// ProcessRequest classifies and admits/rejects a subscribe or unsubscribe
// request (§6).
func (s *Server) ProcessRequest(requestorID uint32, req RequestPacket) ResponsePacket {
	kind, ok := classify(req.NodeAddress, req.VariableID, req.Revision)
	if !ok {
		metrics.RequestsRejectedTotal.WithLabelValues("invalid_pattern").Inc()
		return ResponsePacket{
			Accepted:                false,
			RequestsRemainingLocal:  s.ledger.FreeLocal(requestorID),
			RequestsRemainingRemote: s.ledger.FreeRemote(requestorID),
		}
	}

	host, varID, rev := req.NodeAddress, req.VariableID, req.Revision
	remote := isRemote(host, s.settings.MyNodeAddress)

	accepted := true
	if req.Quantity < 0 {
		s.unsubscribe(kind, requestorID, host, varID, rev)
	} else {
		res := s.subscribe(kind, requestorID, req.Deadline, remote, host, varID, rev)
		accepted = res != bank.Rejected
		metrics.SubscriptionsTotal.WithLabelValues(kind.String(), res.String()).Inc()
		if res == bank.Rejected {
			metrics.RequestsRejectedTotal.WithLabelValues("quota").Inc()
		}
	}

	return ResponsePacket{
		Accepted:                accepted,
		RequestsRemainingLocal:  s.ledger.FreeLocal(requestorID),
		RequestsRemainingRemote: s.ledger.FreeRemote(requestorID),
	}
}

// ProcessData runs the dispatch engine for an incoming data packet (§4.E,
// §6 `process_data`).
func (s *Server) ProcessData(providerID uint32, pkt DataPacket) []uint32 {
	s.working.Set(pkt.VariableID, pkt)
	return s.engine.Dispatch(dispatch.DataPacket{NodeAddress: pkt.NodeAddress, VariableID: pkt.VariableID, Revision: pkt.Revision})
}

// ProcessProduction assigns a new revision to a variable via the external
// revision set, synthesises a data packet, and runs dispatch (§6
// `process_production`). Returns the acceptance plus the client ids
// dispatch delivered to, so a transport can push the new data onward.
func (s *Server) ProcessProduction(providerID uint32, pkt ProductionPacket) (AcceptancePacket, []uint32) {
	rev := s.revs.NextRevision(pkt.VariableID)
	data := DataPacket{
		NodeAddress: s.settings.MyNodeAddress,
		VariableID:  pkt.VariableID,
		Revision:    rev,
		Payload:     pkt.Payload,
	}
	clients := s.ProcessData(providerID, data)
	return AcceptancePacket{ResponseID: pkt.ResponseID, Revision: rev}, clients
}

// EnforceTimeouts drains every bank of subscriptions whose deadline has
// passed, at the current wall-clock time (§6 `enforce_timeouts`).
func (s *Server) EnforceTimeouts() {
	s.engine.Tick(s.clock.Now())
}

// EnforceFulfillment removes satisfied one-shot subscriptions for a
// specific (host, var, rev) without running a full dispatch again (§6
// `enforce_fulfillment`).
func (s *Server) EnforceFulfillment(delivered DataPacket) {
	s.engine.Fulfilled(dispatch.DataPacket{
		NodeAddress: delivered.NodeAddress,
		VariableID:  delivered.VariableID,
		Revision:    delivered.Revision,
	})
}

func (s *Server) subscribe(kind patternKind, clientID uint32, deadline time.Time, remote bool, host, varID, rev uint32) bank.AddResult {
	var (
		res bank.AddResult
		err error
	)
	switch kind {
	case kindAll:
		res, err = s.banks.All.Add(bank.AllKey{}, clientID, deadline, remote)
	case kindHost:
		res, err = s.banks.Host.Add(bank.HostKey(host), clientID, deadline, remote)
	case kindVar:
		res, err = s.banks.Var.Add(bank.VarKey(varID), clientID, deadline, remote)
	case kindHostVar:
		res, err = s.banks.HostVar.Add(bank.HostVarKey{Host: host, Var: varID}, clientID, deadline, remote)
	case kindVarRev:
		res, err = s.banks.VarRev.Add(bank.VarRevKey{Var: varID, Rev: rev}, clientID, deadline, remote)
	case kindHostVarRev:
		res, err = s.banks.HostVarRev.Add(bank.HostVarRevKey{Host: host, Var: varID, Rev: rev}, clientID, deadline, remote)
	}
	if err != nil {
		panic(err)
	}
	return res
}

func (s *Server) unsubscribe(kind patternKind, clientID uint32, host, varID, rev uint32) {
	switch kind {
	case kindAll:
		s.banks.All.RemoveClient(bank.AllKey{}, clientID)
	case kindHost:
		s.banks.Host.RemoveClient(bank.HostKey(host), clientID)
	case kindVar:
		s.banks.Var.RemoveClient(bank.VarKey(varID), clientID)
	case kindHostVar:
		s.banks.HostVar.RemoveClient(bank.HostVarKey{Host: host, Var: varID}, clientID)
	case kindVarRev:
		s.banks.VarRev.RemoveClient(bank.VarRevKey{Var: varID, Rev: rev}, clientID)
	case kindHostVarRev:
		s.banks.HostVarRev.RemoveClient(bank.HostVarRevKey{Host: host, Var: varID, Rev: rev}, clientID)
	}
}
