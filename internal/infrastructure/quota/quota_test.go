package quota

import "testing"

func TestGuardPerUserBudget(t *testing.T) {
	guard := New(Options{GlobalRPS: 100, GlobalBurst: 100, UserRPS: 0.001, UserBurst: 2})

	if !guard.Allow("u-1") || !guard.Allow("u-1") {
		t.Fatal("burst submissions must be allowed")
	}
	if guard.Allow("u-1") {
		t.Fatal("third submission must exceed the user burst")
	}
	if !guard.Allow("u-2") {
		t.Fatal("a different user must have an independent budget")
	}
}

func TestGuardGlobalBudget(t *testing.T) {
	guard := New(Options{GlobalRPS: 0.001, GlobalBurst: 1, UserRPS: 100, UserBurst: 100})

	if !guard.Allow("u-1") {
		t.Fatal("first submission must pass")
	}
	if guard.Allow("u-2") {
		t.Fatal("global budget must apply across users")
	}
}
