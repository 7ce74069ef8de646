package bank

// AllKey is the (empty) key set for the All pattern bank: every
// subscription in this bank matches every data packet.
type AllKey struct{}

// HostKey is the key set for the Host pattern bank.
type HostKey uint32

// VarKey is the key set for the Var pattern bank.
type VarKey uint32

// HostVarKey is the key set for the HostVar pattern bank.
type HostVarKey struct {
	Host uint32
	Var  uint32
}

// VarRevKey is the key set for the VarRev pattern bank.
type VarRevKey struct {
	Var uint32
	Rev uint32
}

// HostVarRevKey is the key set for the HostVarRev pattern bank.
type HostVarRevKey struct {
	Host uint32
	Var  uint32
	Rev  uint32
}
