package main

import (
	"context"
	"os"

	"edexport-backend/cmd/edexport/commands"
	"edexport-backend/lib/serviceutil"
	"edexport-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(os.Getenv("EDEXPORT_VERBOSE") != "")

	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "edexport")
	if err == nil {
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	} else if !os.IsNotExist(err) {
		serviceutil.Fatal("setup telemetry", err)
	}

	commands.ExecuteContext(ctx)
}
