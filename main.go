package main

import (
	"github.com/joho/godotenv"

	"recyclescan/internal/catalog"
	"recyclescan/internal/config"
	"recyclescan/internal/logging"
	"recyclescan/internal/ui"
	"recyclescan/processing/capture"
	"recyclescan/processing/detector"
	"recyclescan/processing/scanner"
)

func main() {
	_ = godotenv.Load()

	log := logging.NewLogger()

	cfg := config.LoadConfigFile(config.DefaultConfigPath)

	cat, err := catalog.Load()
	if err != nil {
		log.WithError(err).Fatal("project catalog is invalid")
	}

	det := detector.NewRemoteClient(cfg.DetectorHost(), log)
	det.Start()
	defer det.Stop()

	sc := scanner.New(
		det,
		func() (capture.VideoStreamer, error) { return capture.NewStreamer(cfg) },
		log,
		scanner.Options{
			PollInterval: cfg.PollInterval(),
			Threshold:    cfg.Threshold(),
		},
	)
	defer sc.Stop()

	app := ui.CreateApp(sc, det, cat, cfg, log)
	app.Run()
}
