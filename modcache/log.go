package modcache

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("phpenv.modcache")
