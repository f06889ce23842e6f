package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field is a typed key/value pair attached to a log entry.
type Field interface {
	Key() string
	ZapField() zap.Field
}

type wrappedField struct {
	field zap.Field
}

func (f wrappedField) Key() string {
	return f.field.Key
}

func (f wrappedField) ZapField() zap.Field {
	return f.field
}

// Field constructors mirroring the zap API for the types the runtime
// actually logs.
var (
	String = func(key, val string) Field {
		return wrappedField{zap.String(key, val)}
	}

	Strings = func(key string, val []string) Field {
		return wrappedField{zap.Strings(key, val)}
	}

	Int = func(key string, val int) Field {
		return wrappedField{zap.Int(key, val)}
	}

	Int64 = func(key string, val int64) Field {
		return wrappedField{zap.Int64(key, val)}
	}

	Uint64 = func(key string, val uint64) Field {
		return wrappedField{zap.Uint64(key, val)}
	}

	Float64 = func(key string, val float64) Field {
		return wrappedField{zap.Float64(key, val)}
	}

	Bool = func(key string, val bool) Field {
		return wrappedField{zap.Bool(key, val)}
	}

	Time = func(key string, val time.Time) Field {
		return wrappedField{zap.Time(key, val)}
	}

	Duration = func(key string, val time.Duration) Field {
		return wrappedField{zap.Duration(key, val)}
	}

	Error = func(err error) Field {
		return wrappedField{zap.Error(err)}
	}

	Any = func(key string, val interface{}) Field {
		return wrappedField{zap.Any(key, val)}
	}
)
