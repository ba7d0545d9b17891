package policy

import "testing"

func TestAnyRole(t *testing.T) {
	sub := Subject{ID: "u1", Roles: []string{"editor"}}

	if !AnyRole("admin", "editor")(sub, Resource{}, nil) {
		t.Fatal("expected grant: editor is one of the required roles")
	}
	if AnyRole("admin")(sub, Resource{}, nil) {
		t.Fatal("expected deny: no required role held")
	}
	if AnyRole()(sub, Resource{}, nil) {
		t.Fatal("empty requirement must deny")
	}
	if !AnyRole("EDITOR")(Subject{Roles: []string{" Editor "}}, Resource{}, nil) {
		t.Fatal("role comparison must normalize case and whitespace")
	}
}

func TestAllScopes(t *testing.T) {
	sub := Subject{ID: "u1", Scopes: []string{"read:users"}}

	if AllScopes("read:users", "write:posts")(sub, Resource{}, nil) {
		t.Fatal("expected deny: subject scopes are not a superset")
	}
	if !AllScopes("read:users")(sub, Resource{}, nil) {
		t.Fatal("expected grant: all required scopes held")
	}
	both := Subject{Scopes: []string{"read:users", "write:posts", "extra"}}
	if !AllScopes("read:users", "write:posts")(both, Resource{}, nil) {
		t.Fatal("expected grant: superset suffices")
	}
	if AllScopes()(sub, Resource{}, nil) {
		t.Fatal("empty requirement must deny")
	}
}

func TestAnyOfIsUnionOfAllowRules(t *testing.T) {
	adminOnly := AnyRole("admin")
	sub := Subject{ID: "u1", Roles: []string{"viewer"}}
	res := Resource{ID: "doc-9", OwnerID: "u1"}

	// Ownership grants even though the admin-role policy denies.
	if !AnyOf(Owner(), adminOnly)(sub, res, nil) {
		t.Fatal("expected grant via ownership")
	}
	if AnyOf(adminOnly)(sub, res, nil) {
		t.Fatal("expected deny: admin policy alone denies")
	}
	if AnyOf()(sub, res, nil) {
		t.Fatal("empty policy list must deny")
	}
}

func TestAllOf(t *testing.T) {
	sub := Subject{ID: "u1", Roles: []string{"editor"}, Scopes: []string{"read:users"}}

	if !AllOf(AnyRole("editor"), AllScopes("read:users"))(sub, Resource{}, nil) {
		t.Fatal("expected grant: both conjuncts hold")
	}
	if AllOf(AnyRole("editor"), AllScopes("write:posts"))(sub, Resource{}, nil) {
		t.Fatal("expected deny: one conjunct fails")
	}
	if AllOf()(sub, Resource{}, nil) {
		t.Fatal("empty conjunction must deny")
	}
}

func TestOwnerFailsClosed(t *testing.T) {
	if Owner()(Subject{ID: "u1"}, Resource{}, nil) {
		t.Fatal("unset owner must deny")
	}
	if Owner()(Subject{}, Resource{OwnerID: "u1"}, nil) {
		t.Fatal("unset subject must deny")
	}
	if !Owner()(Subject{ID: "u1"}, Resource{OwnerID: "u1"}, nil) {
		t.Fatal("matching owner must grant")
	}
}

func TestEnvEqualsFailsClosed(t *testing.T) {
	p := EnvEquals("network", "internal")

	if p(Subject{}, Resource{}, nil) {
		t.Fatal("nil environment must deny")
	}
	if p(Subject{}, Resource{}, Env{}) {
		t.Fatal("missing key must deny")
	}
	if p(Subject{}, Resource{}, Env{"network": "public"}) {
		t.Fatal("mismatched value must deny")
	}
	if !p(Subject{}, Resource{}, Env{"network": "internal"}) {
		t.Fatal("matching value must grant")
	}
}
