package main

import (
	"flag"
	"os"

	"FinFeat/internal/services/features"
	"FinFeat/internal/services/scaler"
	applogger "FinFeat/pkg/logger"
)

// scalerconv rewrites legacy scaler exports (*_scaler.bin, *_scaler.attrs.json)
// in a directory as *_scaler.json documents.
func main() {
	dir := flag.String("dir", "assets/ml", "directory holding legacy scaler files")
	width := flag.Int("width", features.NumFeatures, "expected feature count")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := applogger.New(&applogger.Config{Level: *level, Format: "console"})
	if err != nil {
		log = applogger.Nop()
	}
	log = log.With("scalerconv")

	files, err := scaler.LegacyFiles(*dir)
	if err != nil {
		log.Error("list legacy scalers", applogger.Error(err))
		os.Exit(1)
	}
	if len(files) == 0 {
		log.Info("nothing to convert", applogger.String("dir", *dir))
		return
	}

	failed := 0
	for _, f := range files {
		out, err := scaler.ConvertFile(f, *width)
		if err != nil {
			failed++
			log.Error("convert failed", applogger.String("file", f), applogger.Error(err))
			continue
		}
		log.Info("converted", applogger.String("from", f), applogger.String("to", out))
	}
	if failed > 0 {
		os.Exit(1)
	}
}
