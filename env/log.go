package env

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("phpenv.env")
