package analytics

import (
	"github.com/chasex/glog"
)

// FileLogger writes transaction records to a rolling file.
type FileLogger struct {
	Logger *glog.Logger
}

// NewFileLogger initializes the file-based analytics module.
func NewFileLogger(filename string) (Module, error) {
	options := glog.LogOptions{
		File:  filename,
		Flag:  glog.LstdFlags,
		Level: glog.Ldebug,
		Mode:  glog.R_Day,
	}
	logger, err := glog.New(options)
	if err != nil {
		return nil, err
	}
	return &FileLogger{Logger: logger}, nil
}

// LogCookieSyncObject appends a CookieSyncObject to the file.
func (f *FileLogger) LogCookieSyncObject(cso *CookieSyncObject) {
	f.Logger.Debug(cso.ToJson())
	f.Logger.Flush()
}

// NilModule discards everything. Used when no analytics output is configured.
type NilModule struct{}

func (NilModule) LogCookieSyncObject(*CookieSyncObject) {}
