package dispatch

import (
	"sync"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

var comInit sync.Once

type oleFactory struct {
	initErr error
}

// NewOLEFactory returns a Factory backed by COM. COM is initialised once
// per process in the multithreaded apartment; on platforms without COM
// every Create call fails.
func NewOLEFactory() Factory {
	f := &oleFactory{}
	comInit.Do(func() {
		if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
			// S_FALSE means COM was already initialised on this thread
			if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
				f.initErr = err
			}
		}
	})
	return f
}

func (f *oleFactory) Create(progID string) (Object, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	unknown, err := oleutil.CreateObject(progID)
	if err != nil {
		return nil, err
	}
	defer unknown.Release()

	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, err
	}
	return &oleObject{disp: disp}, nil
}

type oleObject struct {
	disp *ole.IDispatch
}

func (o *oleObject) InvokeMethod(method string, args ...interface{}) (interface{}, error) {
	v, err := oleutil.CallMethod(o.disp, method, unwrapArgs(args)...)
	if err != nil {
		return nil, err
	}
	return fromVariant(v), nil
}

// InvokeMethodByRef passes string and int arguments as pointers, which
// go-ole marshals as VT_BYREF and copies back after the call.
func (o *oleObject) InvokeMethodByRef(method string, args []interface{}) (interface{}, error) {
	params := make([]interface{}, len(args))
	strs := make(map[int]*string)
	ints := make(map[int]*int32)
	for i, a := range args {
		switch v := a.(type) {
		case string:
			s := v
			strs[i] = &s
			params[i] = &s
		case int:
			n := int32(v)
			ints[i] = &n
			params[i] = &n
		case *oleObject:
			params[i] = v.disp
		default:
			params[i] = a
		}
	}

	v, err := oleutil.CallMethod(o.disp, method, params...)
	if err != nil {
		return nil, err
	}
	for i, s := range strs {
		args[i] = *s
	}
	for i, n := range ints {
		args[i] = int(*n)
	}
	return fromVariant(v), nil
}

func (o *oleObject) GetProperty(name string) (interface{}, error) {
	v, err := oleutil.GetProperty(o.disp, name)
	if err != nil {
		return nil, err
	}
	return fromVariant(v), nil
}

func (o *oleObject) Release() {
	if o.disp != nil {
		o.disp.Release()
		o.disp = nil
	}
}

func unwrapArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if obj, ok := a.(*oleObject); ok {
			out[i] = obj.disp
			continue
		}
		out[i] = a
	}
	return out
}

func fromVariant(v *ole.VARIANT) interface{} {
	if v == nil {
		return nil
	}
	if v.VT == ole.VT_DISPATCH {
		return &oleObject{disp: v.ToIDispatch()}
	}
	val := v.Value()
	_ = v.Clear()
	return val
}
