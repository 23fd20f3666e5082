package log

import (
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the shared application logger. Binaries call InitLogger once at
// startup; packages log through this.
var Logger = kitlog.NewNopLogger()

// InitLogger installs a logfmt logger on stderr. verbose enables debug
// logging.
func InitLogger(verbose bool) {
	l := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	opt := level.AllowInfo()
	if verbose {
		opt = level.AllowDebug()
	}
	l = level.NewFilter(l, opt)
	l = kitlog.With(l, "ts", kitlog.DefaultTimestampUTC)

	Logger = l
}
