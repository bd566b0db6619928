// Package dispatchtest provides an in-memory ProvideX automation layer for
// tests. It models the script object, the SY_Session object and one
// business object per registered table, and records every call made.
package dispatchtest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/naveego/plugin-sage/pkg/dispatch"
)

// Delimiter mirrors the legacy field separator
const Delimiter = "Š"

// Table is the content behind one business object
type Table struct {
	BusObject string
	Columns   []string
	Keys      []string
	Rows      [][]string
	// Lines backs the oLines child object
	Lines *Table
	// Corrupt drops the last field of every fetched row
	Corrupt bool
	// DataSources overrides the sGetDataSources response
	DataSources []string

	nextKey int
}

// Call is one recorded invocation
type Call struct {
	Object string
	Method string
	Args   []string
}

// System is a fake Sage installation
type System struct {
	mu sync.Mutex

	Username string
	Password string
	Company  string

	tables   map[string]*Table
	calls    []Call
	released map[string]int
	fail     map[string]error
	delay    map[string]time.Duration

	lastError string
	module    string
	program   int
}

// NewSystem creates a system accepting the given credentials
func NewSystem(username, password, company string) *System {
	return &System{
		Username: username,
		Password: password,
		Company:  company,
		tables:   make(map[string]*Table),
		released: make(map[string]int),
		fail:     make(map[string]error),
		delay:    make(map[string]time.Duration),
	}
}

// AddTable registers a business object
func (s *System) AddTable(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.BusObject] = t
}

// Table returns a registered table
func (s *System) Table(busObject string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[busObject]
}

// FailOn makes every call of method fail with err and sets sLastErrorMsg
func (s *System) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

// DelayOn makes every call of method block for d before running
func (s *System) DelayOn(method string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay[method] = d
}

// Calls returns the recorded calls, optionally filtered by method
func (s *System) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Released returns how many times objects of the given name were
// released. Names are bus object names, "session" or "script".
func (s *System) Released(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[name]
}

// CurrentModule returns the module last set on the session
func (s *System) CurrentModule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module
}

// Row returns the row whose key columns equal keys, or nil
func (s *System) Row(busObject string, keys ...string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[busObject]
	if t == nil {
		return nil
	}
	if idx := t.find(keys); idx >= 0 {
		return t.rowMap(idx)
	}
	return nil
}

// Factory returns a dispatch.Factory creating the script object
func (s *System) Factory() dispatch.Factory {
	return dispatch.FactoryFunc(func(progID string) (dispatch.Object, error) {
		if progID != "ProvideX.Script" {
			return nil, fmt.Errorf("class not registered: %s", progID)
		}
		return &object{sys: s, kind: "script"}, nil
	})
}

// enter records the call and applies configured delay and failure
func (s *System) enter(obj, method string, args []interface{}) error {
	s.mu.Lock()
	strArgs := make([]string, len(args))
	for i, a := range args {
		if _, isObj := a.(dispatch.Object); isObj {
			strArgs[i] = "<object>"
			continue
		}
		strArgs[i] = dispatch.ToString(a)
	}
	s.calls = append(s.calls, Call{Object: obj, Method: method, Args: strArgs})
	d := s.delay[method]
	err := s.fail[method]
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
	return err
}

type object struct {
	sys   *System
	kind  string // script, session, bus
	table *Table

	lines     *object
	pos       int
	keyValues map[string]string
	edit      map[string]string
	current   int // row being edited, -1 for a new row
	keyed     bool
}

func (o *object) name() string {
	if o.table != nil {
		return o.table.BusObject
	}
	return o.kind
}

func (o *object) InvokeMethod(method string, args ...interface{}) (interface{}, error) {
	if err := o.sys.enter(o.name(), method, args); err != nil {
		return nil, err
	}

	o.sys.mu.Lock()
	defer o.sys.mu.Unlock()

	switch o.kind {
	case "script":
		return o.script(method, args)
	case "session":
		return o.session(method, args)
	default:
		return o.bus(method, args)
	}
}

func (o *object) InvokeMethodByRef(method string, args []interface{}) (interface{}, error) {
	if err := o.sys.enter(o.name(), method, args); err != nil {
		return nil, err
	}

	o.sys.mu.Lock()
	defer o.sys.mu.Unlock()

	t := o.table
	if t == nil {
		return nil, fmt.Errorf("method %s not supported on %s", method, o.kind)
	}

	switch method {
	case "nGetRecord":
		if o.pos < 0 || o.pos >= len(t.Rows) {
			o.sys.lastError = "No current record"
			return 0, fmt.Errorf("no current record")
		}
		row := t.Rows[o.pos]
		if t.Corrupt && len(row) > 0 {
			row = row[:len(row)-1]
		}
		if len(args) > 0 {
			args[0] = strings.Join(row, Delimiter)
		}
		return 1, nil
	case "nGetNextSalesOrderNo":
		t.nextKey++
		if len(args) > 0 {
			args[0] = fmt.Sprintf("%07d", 9000000+t.nextKey)
		}
		return 1, nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

func (o *object) GetProperty(name string) (interface{}, error) {
	if err := o.sys.enter(o.name(), name, nil); err != nil {
		return nil, err
	}

	o.sys.mu.Lock()
	defer o.sys.mu.Unlock()

	switch name {
	case "sLastErrorMsg":
		return o.sys.lastError, nil
	case "nEOF":
		if o.table == nil {
			return nil, fmt.Errorf("nEOF on %s", o.kind)
		}
		if o.pos >= len(o.table.Rows) {
			return "1", nil
		}
		return "0", nil
	case "oLines":
		if o.table == nil || o.table.Lines == nil {
			return nil, fmt.Errorf("object has no lines")
		}
		if o.lines == nil {
			o.lines = newBus(o.sys, o.table.Lines)
		}
		return o.lines, nil
	}
	return nil, fmt.Errorf("unknown property %s", name)
}

func (o *object) Release() {
	o.sys.mu.Lock()
	defer o.sys.mu.Unlock()
	o.sys.released[o.name()]++
}

func newBus(sys *System, t *Table) *object {
	return &object{sys: sys, kind: "bus", table: t, current: -1}
}

func (o *object) script(method string, args []interface{}) (interface{}, error) {
	switch method {
	case "Init":
		return 1, nil
	case "NewObject":
		if len(args) == 0 {
			return nil, fmt.Errorf("NewObject requires a class name")
		}
		class := dispatch.ToString(args[0])
		if class == "SY_Session" {
			return &object{sys: o.sys, kind: "session"}, nil
		}
		t, ok := o.sys.tables[class]
		if !ok {
			o.sys.lastError = "Unable to create object " + class
			return nil, fmt.Errorf("unable to create %s", class)
		}
		return newBus(o.sys, t), nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

func (o *object) session(method string, args []interface{}) (interface{}, error) {
	switch method {
	case "nSetUser":
		if len(args) < 2 || dispatch.ToString(args[0]) != o.sys.Username || dispatch.ToString(args[1]) != o.sys.Password {
			o.sys.lastError = "Invalid user or password"
			return 0, fmt.Errorf("login failed")
		}
		return 1, nil
	case "nSetCompany":
		if len(args) < 1 || dispatch.ToString(args[0]) != o.sys.Company {
			o.sys.lastError = "Invalid company code"
			return 0, fmt.Errorf("company not found")
		}
		return 1, nil
	case "nSetDate":
		return 1, nil
	case "nSetModule":
		o.sys.module = dispatch.ToString(args[0])
		return 1, nil
	case "nLookupTask":
		o.sys.program++
		return o.sys.program, nil
	case "nSetProgram":
		return 1, nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

func (o *object) bus(method string, args []interface{}) (interface{}, error) {
	t := o.table
	switch method {
	case "sGetDataSources":
		if len(t.DataSources) > 0 {
			return strings.Join(t.DataSources, Delimiter), nil
		}
		return "DS_" + t.BusObject + Delimiter + "DS_ALT", nil
	case "sGetColumns":
		return strings.Join(t.Columns, Delimiter), nil
	case "nGetRecordCount":
		return len(t.Rows), nil
	case "sGetKeyColumns":
		return strings.Join(t.Keys, Delimiter), nil
	case "nMoveFirst":
		o.pos = 0
		return 1, nil
	case "nMoveNext":
		o.pos++
		return 1, nil
	case "nSetKeyValue":
		if o.keyValues == nil {
			o.keyValues = make(map[string]string)
		}
		o.keyValues[dispatch.ToString(args[0])] = dispatch.ToString(args[1])
		return 1, nil
	case "nSetKey":
		o.edit = make(map[string]string)
		if len(args) == 1 && len(t.Keys) > 0 {
			o.keyValues = map[string]string{t.Keys[0]: dispatch.ToString(args[0])}
		}
		keys := make([]string, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = o.keyValues[k]
		}
		o.current = t.find(keys)
		o.keyed = true
		return 1, nil
	case "nFind":
		if o.keyed && o.current >= 0 {
			return "1", nil
		}
		return "0", nil
	case "nSetValue":
		col := dispatch.ToString(args[0])
		if t.column(col) < 0 {
			o.sys.lastError = "Column " + col + " is not valid"
			return 0, fmt.Errorf("invalid column %s", col)
		}
		if o.edit == nil {
			o.edit = make(map[string]string)
		}
		o.edit[col] = dispatch.ToString(args[1])
		return 1, nil
	case "nAddLine":
		if o.edit != nil && len(o.edit) > 0 {
			o.commitLocked()
		}
		o.edit = make(map[string]string)
		o.current = -1
		o.keyValues = nil
		o.keyed = true
		return 1, nil
	case "nWrite":
		if !o.keyed {
			o.sys.lastError = "Key not set"
			return 0, fmt.Errorf("key not set")
		}
		o.commitLocked()
		if o.lines != nil && len(o.lines.edit) > 0 {
			o.lines.commitLocked()
		}
		return 1, nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

func (o *object) commitLocked() {
	t := o.table
	if o.current >= 0 {
		for col, v := range o.edit {
			t.Rows[o.current][t.column(col)] = v
		}
	} else {
		row := make([]string, len(t.Columns))
		for k, v := range o.keyValues {
			if i := t.column(k); i >= 0 {
				row[i] = v
			}
		}
		for col, v := range o.edit {
			row[t.column(col)] = v
		}
		t.Rows = append(t.Rows, row)
	}
	o.edit = nil
	o.keyed = false
	o.keyValues = nil
	o.current = -1
}

func (t *Table) column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) find(keys []string) int {
	for r, row := range t.Rows {
		match := len(t.Keys) > 0
		for i, k := range t.Keys {
			c := t.column(k)
			if c < 0 || i >= len(keys) || row[c] != keys[i] {
				match = false
				break
			}
		}
		if match {
			return r
		}
	}
	return -1
}

func (t *Table) rowMap(idx int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		out[c] = t.Rows[idx][i]
	}
	return out
}

// Count returns the number of rows in a table
func (s *System) Count(busObject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tables[busObject]; t != nil {
		return len(t.Rows)
	}
	return 0
}
