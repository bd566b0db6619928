// Package session owns the authenticated SY_Session handle of a Sage
// installation. The legacy session keeps the active module as global state,
// so switching modules and creating business objects are serialized here.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/dispatch"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
)

// ScriptProgID is the automation class of the ProvideX scripting layer
const ScriptProgID = "ProvideX.Script"

// Credentials are the settings needed to open a session
type Credentials struct {
	Username    string
	Password    string
	CompanyCode string
	HomePath    string
}

// Session is one authenticated connection to Sage
type Session struct {
	mu      sync.Mutex
	script  dispatch.Object
	session dispatch.Object
	module  string
	closed  bool
	now     func() time.Time
	logger  *zap.Logger
}

// Open initialises the scripting layer and logs in. Failures are
// connection errors carrying the session's last error text when the
// session object exists far enough to report it.
func Open(ctx context.Context, factory dispatch.Factory, creds Credentials) (*Session, error) {
	log := logger.WithContext(ctx).With(zap.String("company", creds.CompanyCode))

	script, err := factory.Create(ScriptProgID)
	if err != nil {
		return nil, errors.Bridge(errors.ErrorTypeConnection, "CreateObject", []string{ScriptProgID}, "", err)
	}
	if _, err := script.InvokeMethod("Init", creds.HomePath); err != nil {
		script.Release()
		return nil, errors.Bridge(errors.ErrorTypeConnection, "Init", []string{creds.HomePath}, "", err)
	}
	res, err := script.InvokeMethod("NewObject", "SY_Session")
	if err != nil {
		script.Release()
		return nil, errors.Bridge(errors.ErrorTypeConnection, "NewObject", []string{"SY_Session"}, "", err)
	}
	oss, err := dispatch.AsObject(res)
	if err != nil {
		script.Release()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "SY_Session was not created")
	}

	s := &Session{
		script:  script,
		session: oss,
		now:     time.Now,
		logger:  log,
	}

	// the password never goes into the error params
	if _, err := oss.InvokeMethod("nSetUser", creds.Username, creds.Password); err != nil {
		last := s.LastError()
		s.Close()
		return nil, errors.Bridge(errors.ErrorTypeConnection, "nSetUser", []string{creds.Username}, last, err)
	}
	if _, err := oss.InvokeMethod("nSetCompany", creds.CompanyCode); err != nil {
		last := s.LastError()
		s.Close()
		return nil, errors.Bridge(errors.ErrorTypeConnection, "nSetCompany", []string{creds.CompanyCode}, last, err)
	}

	log.Info("sage session opened")
	return s, nil
}

// LastError returns the most recent error text reported by the session,
// or "" if it cannot be read.
func (s *Session) LastError() string {
	if s.session == nil {
		return ""
	}
	v, err := s.session.GetProperty("sLastErrorMsg")
	if err != nil {
		s.logger.Warn("failed to read last error", zap.Error(err))
		return ""
	}
	return dispatch.ToString(v)
}

// CurrentModule returns the module most recently switched to
func (s *Session) CurrentModule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module
}

// SwitchModule sets the session date and module
func (s *Session) SwitchModule(ctx context.Context, moduleCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchModuleLocked(moduleCode)
}

func (s *Session) switchModuleLocked(moduleCode string) error {
	if s.closed {
		return errors.New(errors.ErrorTypeConnection, "session is closed")
	}
	date := s.now().Format("01022006")
	if _, err := s.session.InvokeMethod("nSetDate", moduleCode, date); err != nil {
		return errors.Bridge(errors.ErrorTypeMetadata, "nSetDate", []string{moduleCode, date}, s.LastError(), err)
	}
	if _, err := s.session.InvokeMethod("nSetModule", moduleCode); err != nil {
		return errors.Bridge(errors.ErrorTypeMetadata, "nSetModule", []string{moduleCode}, s.LastError(), err)
	}
	s.module = moduleCode
	return nil
}

// NewBusinessObject switches to the config's module, selects its task and
// instantiates its business object, all under the session lock. Detail
// configs return the oLines child of the business object.
func (s *Session) NewBusinessObject(ctx context.Context, cfg busobject.ModuleConfig) (dispatch.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.module != cfg.Module {
		if err := s.switchModuleLocked(cfg.Module); err != nil {
			return nil, err
		}
	} else if s.closed {
		return nil, errors.New(errors.ErrorTypeConnection, "session is closed")
	}

	res, err := s.session.InvokeMethod("nLookupTask", cfg.Task)
	if err != nil {
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "nLookupTask", []string{cfg.Task}, s.LastError(), err)
	}
	taskID, err := dispatch.ToInt(res)
	if err != nil {
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "nLookupTask", []string{cfg.Task}, s.LastError(), err)
	}
	if _, err := s.session.InvokeMethod("nSetProgram", taskID); err != nil {
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "nSetProgram", []string{cfg.Task}, s.LastError(), err)
	}

	res, err = s.script.InvokeMethod("NewObject", cfg.BusObject, s.session)
	if err != nil {
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "NewObject", []string{cfg.BusObject}, s.LastError(), err)
	}
	bus, err := dispatch.AsObject(res)
	if err != nil {
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "NewObject", []string{cfg.BusObject}, s.LastError(), err)
	}

	if !cfg.IsDetails {
		return bus, nil
	}

	res, err = bus.GetProperty("oLines")
	if err != nil {
		bus.Release()
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "oLines", []string{cfg.BusObject}, s.LastError(), err)
	}
	lines, err := dispatch.AsObject(res)
	if err != nil {
		bus.Release()
		return nil, errors.Bridge(errors.ErrorTypeMetadata, "oLines", []string{cfg.BusObject}, s.LastError(), err)
	}
	return &detailObject{Object: lines, parent: bus}, nil
}

// detailObject is an oLines child that owns its parent business object
type detailObject struct {
	dispatch.Object
	parent dispatch.Object
}

// Release frees the lines object, then its parent
func (d *detailObject) Release() {
	d.Object.Release()
	d.parent.Release()
}

// Close releases the session objects
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.session != nil {
		s.session.Release()
	}
	if s.script != nil {
		s.script.Release()
	}
}
