package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleChair, ActionLock, true},
		{RoleChair, ActionTimer, true},
		{RoleChair, ActionComment, true},
		{RoleChair, ActionSelectBloc, true},
		{RoleChair, ActionSearch, true},
		{RoleDelegate, ActionRead, true},
		{RoleDelegate, ActionEdit, true},
		{RoleDelegate, ActionCreateBloc, true},
		{RoleDelegate, ActionExport, true},
		{RoleDelegate, ActionLock, false},
		{RoleDelegate, ActionTimer, false},
		{RoleDelegate, ActionComment, false},
		{RoleDelegate, ActionSelectBloc, false},
		{RoleDelegate, ActionSearch, false},
		{Role("observer"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("chair") != RoleChair {
		t.Error("chair should normalize to chair")
	}
	if Normalize("delegate") != RoleDelegate {
		t.Error("delegate should normalize to delegate")
	}
	if Normalize("") != RoleDelegate {
		t.Error("unknown roles default to delegate")
	}
}
