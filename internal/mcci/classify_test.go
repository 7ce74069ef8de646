package mcci

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		host, varID, rev uint32
		wantKind         patternKind
		wantOK           bool
	}{
		{0, 0, 0, kindAll, true},
		{5, 0, 0, kindHost, true},
		{0, 9, 0, kindVar, true},
		{5, 9, 0, kindHostVar, true},
		{0, 9, 4, kindVarRev, true},
		{5, 9, 4, kindHostVarRev, true},
		{0, 0, 4, 0, false},
		{5, 0, 4, 0, false},
	}
	for _, c := range cases {
		kind, ok := classify(c.host, c.varID, c.rev)
		if ok != c.wantOK {
			t.Errorf("classify(%d,%d,%d) ok = %v, want %v", c.host, c.varID, c.rev, ok, c.wantOK)
			continue
		}
		if ok && kind != c.wantKind {
			t.Errorf("classify(%d,%d,%d) kind = %v, want %v", c.host, c.varID, c.rev, kind, c.wantKind)
		}
	}
}

func TestIsRemote(t *testing.T) {
	if isRemote(0, 1) {
		t.Error("wildcard host should be local")
	}
	if isRemote(1, 1) {
		t.Error("own host should be local")
	}
	if !isRemote(2, 1) {
		t.Error("other host should be remote")
	}
}
