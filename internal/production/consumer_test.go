package production

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ifreecarve/mccibus/internal/mcci"
)

func TestNewConsumerRejectsMissingConfig(t *testing.T) {
	cases := []Config{
		{Brokers: nil, Topic: "production", ConsumerGroup: "g"},
		{Brokers: []string{"localhost:9092"}, Topic: "", ConsumerGroup: "g"},
		{Brokers: []string{"localhost:9092"}, Topic: "production", ConsumerGroup: ""},
	}
	for _, cfg := range cases {
		if _, err := NewConsumer(cfg, nil, 1, zerolog.Nop(), nil, nil, nil, nil); err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
	}
}

func newTestServer() *mcci.Server {
	return mcci.NewServer(mcci.Settings{
		MyNodeAddress:      1,
		MaxLocalRequests:   10,
		MaxRemoteRequests:  10,
		BankSizeHost:       16,
		BankSizeVar:        16,
		BankSizeHostVar:    16,
		BankSizeVarRev:     16,
		BankSizeHostVarRev: 16,
	}, mcci.InMemorySchema{}, mcci.NewInMemoryRevisionSet(), mcci.NewInMemoryWorkingSet(), mcci.SystemClock{})
}

func TestProcessRecordCallsProcessProductionAndDelivers(t *testing.T) {
	server := newTestServer()
	server.ProcessRequest(1, mcci.RequestPacket{VariableID: 9, Quantity: 1, Deadline: time.Now().Add(time.Minute)})

	var delivered struct {
		clients  []uint32
		variable uint32
		revision uint32
	}
	c := &Consumer{
		logger:        zerolog.Nop(),
		server:        server,
		myNodeAddress: 1,
		submit:        func(fn func()) { fn() },
		deliver: func(clientIDs []uint32, nodeAddress, variableID, revision uint32, payload json.RawMessage) {
			delivered.clients = clientIDs
			delivered.variable = variableID
			delivered.revision = revision
		},
	}

	body, _ := json.Marshal(Event{VariableID: 9, ResponseID: 7, Payload: json.RawMessage(`"x"`)})
	c.processRecord(&kgo.Record{Value: body})

	if len(delivered.clients) != 1 || delivered.clients[0] != 1 {
		t.Fatalf("delivered clients = %v, want [1]", delivered.clients)
	}
	if delivered.variable != 9 || delivered.revision != 1 {
		t.Fatalf("delivered (var,rev) = (%d,%d), want (9,1)", delivered.variable, delivered.revision)
	}
}
