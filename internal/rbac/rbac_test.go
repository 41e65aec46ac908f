package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "viewer interact", role: RoleViewer, action: ActionInteract, allow: false},
		{name: "editor write", role: RoleEditor, action: ActionWrite, allow: true},
		{name: "editor interact", role: RoleEditor, action: ActionInteract, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCommandAction(t *testing.T) {
	if CommandAction("forward_to_vis") != ActionInteract {
		t.Fatal("forward_to_vis should be an interaction")
	}
	for _, cmd := range []string{"close", "save", "delete_env", "save_layouts", "layout_item_update", "pop_embeddings_pane", "bogus"} {
		if CommandAction(cmd) != ActionWrite {
			t.Fatalf("%s should need write access", cmd)
		}
	}
}

func TestForReadonly(t *testing.T) {
	if ForReadonly(true) != RoleViewer || ForReadonly(false) != RoleEditor {
		t.Fatal("unexpected readonly role")
	}
}
