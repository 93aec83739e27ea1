package clickhouse

import (
	"go.uber.org/zap"

	"premiummeter/pkg/logger"
)

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return logger.New(zapLogger)
}
