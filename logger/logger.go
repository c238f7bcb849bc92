// Package logger provides adapters for popular logging libraries to work
// with bptree's Logger interface.
//
// The adapters allow you to use your existing logger without writing
// boilerplate. Note that the standard library's slog.Logger already
// implements bptree.Logger directly.
//
// Example with zap:
//
//	import (
//	    "bptree"
//	    "bptree/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    tree, err := bptree.New[uint64, bptree.RID]("orders_pk", headerID, pool,
//	        bptree.Ordered[uint64](),
//	        bptree.WithLogger(logger.NewZap(zapLogger)),
//	    )
//	    ...
//	}
package logger
