package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
	"github.com/iliyamo/gso-inventory-auth/internal/service"
)

func TestSessionService_DeleteAllRevokesEveryToken(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	a := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)
	b := f.login(t, "staff@gso.example.edu", "correct-horse", model.DeviceInfo{Platform: "Linux", Browser: "Firefox"})

	n, err := f.svc.DeleteAll(context.Background(), id)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	for _, tok := range []string{a.Access.Token, b.Access.Token} {
		if ok, _ := f.registry.Contains(context.Background(), tok); !ok {
			t.Error("token should be revoked")
		}
	}
}

func TestSessionService_DeleteDevice(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	a := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)
	b := f.login(t, "staff@gso.example.edu", "correct-horse", model.DeviceInfo{Platform: "Linux", Browser: "Firefox"})

	n, err := f.svc.DeleteDevice(context.Background(), id, chromeWindows)
	if err != nil || n != 1 {
		t.Fatalf("DeleteDevice = %d, %v", n, err)
	}
	if ok, _ := f.registry.Contains(context.Background(), a.Access.Token); !ok {
		t.Error("device token should be revoked")
	}
	if ok, _ := f.registry.Contains(context.Background(), b.Access.Token); ok {
		t.Error("other device token must stay valid")
	}
	if _, err := f.svc.DeleteDevice(context.Background(), id, model.DeviceInfo{}); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("empty fingerprint err = %v", err)
	}
}

func TestSessionService_OwnershipChecks(t *testing.T) {
	f := newFixture(t)
	owner := f.users.Add("owner@gso.example.edu", "correct-horse", model.RoleDepartmentRep, true)
	other := f.users.Add("other@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	admin := f.users.Add("admin@gso.example.edu", "correct-horse", model.RoleAdmin, true)
	res := f.login(t, "owner@gso.example.edu", "correct-horse", chromeWindows)
	sid := res.Session.ID

	if _, err := f.svc.Get(context.Background(), service.Actor{UserID: owner, Role: model.RoleDepartmentRep}, sid); err != nil {
		t.Errorf("owner Get: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), service.Actor{UserID: other, Role: model.RoleGSOStaff}, sid); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("other Get err = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(context.Background(), service.Actor{UserID: other, Role: model.RoleGSOStaff}, sid); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("other Delete err = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(context.Background(), service.Actor{UserID: admin, Role: model.RoleAdmin}, sid); err != nil {
		t.Errorf("admin Delete: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), service.Actor{UserID: owner, Role: model.RoleDepartmentRep}, sid); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	if ok, _ := f.registry.Contains(context.Background(), res.Access.Token); !ok {
		t.Error("deleted session token should be revoked")
	}
}

func TestSessionService_RegisterHeartbeat(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	res := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)
	actor := service.Actor{UserID: id, Role: model.RoleGSOStaff}

	got, err := f.svc.Register(context.Background(), actor, res.Session, res.Access.Token, chromeWindows, "10.0.0.1", model.Location{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got.ID != res.Session.ID || f.sessions.Count() != 1 {
		t.Errorf("heartbeat should keep one session, got id %d count %d", got.ID, f.sessions.Count())
	}

	got, err = f.svc.Register(context.Background(), actor, res.Session, res.Access.Token, chromeWindows, "10.0.0.1", model.Location{Country: "PH"})
	if err != nil {
		t.Fatalf("Register with location: %v", err)
	}
	if got.ID != res.Session.ID || got.Location.Country != "PH" {
		t.Errorf("session = %+v", got)
	}

	list, err := f.svc.List(context.Background(), id)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
}

func TestSessionService_RegisterMovesTokenToNewDevice(t *testing.T) {
	f := newFixture(t)
	id := f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)
	res := f.login(t, "staff@gso.example.edu", "correct-horse", chromeWindows)
	actor := service.Actor{UserID: id, Role: model.RoleGSOStaff}
	firefoxLinux := model.DeviceInfo{Platform: "Linux", Browser: "Firefox"}

	got, err := f.svc.Register(context.Background(), actor, res.Session, res.Access.Token, firefoxLinux, "10.0.0.1", model.Location{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if f.sessions.Count() != 1 {
		t.Fatalf("sessions = %d, want 1", f.sessions.Count())
	}
	sess, _, err := f.sessions.GetByToken(context.Background(), res.Access.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if sess.ID != got.ID || !sess.Device.SameDevice(firefoxLinux) {
		t.Errorf("token resolves to %+v, want the Linux/Firefox row %d", sess, got.ID)
	}

	// Deleting the session the token lives in leaves nothing behind.
	if err := f.svc.DeleteCurrent(context.Background(), res.Access.Token); err != nil {
		t.Fatalf("DeleteCurrent: %v", err)
	}
	if f.sessions.Count() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.Count())
	}
}

func TestLogin_ConcurrentSameDeviceConvergesOnOneSession(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{"two", 2},
		{"eight", 8},
		{"thirty-two", 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.users.Add("staff@gso.example.edu", "correct-horse", model.RoleGSOStaff, true)

			tokens := make([]string, tt.workers)
			errs := make([]error, tt.workers)
			var wg sync.WaitGroup
			for i := 0; i < tt.workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := f.auth.Login(context.Background(), service.LoginInput{
						Email: "staff@gso.example.edu", Password: "correct-horse", Device: chromeWindows, IP: "10.0.0.1",
					})
					tokens[i], errs[i] = res.Access.Token, err
				}(i)
			}
			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Fatalf("login %d: %v", i, err)
				}
			}
			if f.sessions.Count() != 1 {
				t.Fatalf("sessions = %d, want 1", f.sessions.Count())
			}
			resolved := 0
			for _, tok := range tokens {
				if _, _, err := f.sessions.GetByToken(context.Background(), tok); err == nil {
					resolved++
				}
			}
			if resolved != 1 {
				t.Errorf("tokens resolving to a session = %d, want exactly 1", resolved)
			}
		})
	}
}
