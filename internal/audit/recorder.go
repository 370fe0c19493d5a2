// Package audit records security relevant actions to the audit_logs table
// without putting the database write on the request path.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

// Actions written by the auth core.
const (
	ActionLogin                = "login"
	ActionRegister             = "register"
	ActionLogout               = "logout"
	ActionPasswordResetRequest = "password_reset_request"
	ActionPasswordReset        = "password_reset"
	ActionSessionCreate        = "session_create"
	ActionSessionDelete        = "session_delete"
	ActionSessionDeleteCurrent = "session_delete_current"
	ActionSessionDeleteAll     = "session_delete_all"
	ActionSessionDeleteDevice  = "session_delete_device"

	ActionAdminSessionDeleteAll = "admin_session_delete_all"
)

// writeTimeout bounds one background insert.
const writeTimeout = 5 * time.Second

// Store is the persistence the recorder writes through.
type Store interface {
	Create(ctx context.Context, entry model.AuditLog) error
}

// Recorder writes audit entries on background goroutines.  Record never
// blocks the caller and never fails it; write errors are logged and counted.
type Recorder struct {
	store    Store
	log      *zap.SugaredLogger
	now      func() time.Time
	wg       sync.WaitGroup
	failures atomic.Int64
}

// NewRecorder returns a Recorder writing to store.  A nil logger is
// replaced with a no-op one.
func NewRecorder(store Store, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record schedules an audit entry.  actorID may be nil for anonymous
// actions such as a failed login of an unknown account.
func (r *Recorder) Record(actorID *uint64, action string, details map[string]interface{}) {
	if r == nil || r.store == nil {
		return
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		r.fail(action, err)
		return
	}
	entry := model.AuditLog{UserID: actorID, Action: action, Details: raw, CreatedAt: r.now().UTC()}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Detached from the request: the response may already be written.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.store.Create(ctx, entry); err != nil {
			r.fail(action, err)
		}
	}()
}

// Failures returns how many audit writes have failed since start.
func (r *Recorder) Failures() int64 {
	if r == nil {
		return 0
	}
	return r.failures.Load()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) fail(action string, err error) {
	r.failures.Add(1)
	r.log.Warnw("audit write failed", "action", action, "error", err)
}
