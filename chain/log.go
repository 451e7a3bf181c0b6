package chain

import "github.com/tokenchain/tokend/infrastructure/logger"

var log = logger.RegisterSubSystem("CHND")
