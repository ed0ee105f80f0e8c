package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mvahmadali/CrashAnalytix/internal/collage"
	"github.com/mvahmadali/CrashAnalytix/internal/config"
	"github.com/mvahmadali/CrashAnalytix/internal/db"
	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
	"github.com/mvahmadali/CrashAnalytix/internal/ocr"
	"github.com/mvahmadali/CrashAnalytix/internal/pipeline"
	"github.com/mvahmadali/CrashAnalytix/internal/plate"
	"github.com/mvahmadali/CrashAnalytix/internal/repository"
	"github.com/mvahmadali/CrashAnalytix/internal/service"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
)

// app owns every long-lived resource of the process.
type app struct {
	service  *service.AccidentService
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, rt *runtime) (*app, error) {
	cfg := rt.cfg
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	accidentDet, err := a.loadDetector("accident", cfg.Models.Accident, cfg.Models)
	if err != nil {
		return nil, a.fail(err)
	}
	severityDet, err := a.loadDetector("severity", cfg.Models.Severity, cfg.Models)
	if err != nil {
		return nil, a.fail(err)
	}
	objectDet, err := a.loadDetector("object", cfg.Models.Object, cfg.Models)
	if err != nil {
		return nil, a.fail(err)
	}

	var recognizer *plate.Recognizer
	engine, err := ocr.NewTesseract(ocr.TesseractConfig{Language: cfg.Plate.Language})
	if err != nil {
		rt.log.Warn().Err(err).Msg("ocr engine unavailable, plate recognition disabled")
	} else {
		a.closers = append(a.closers, engine.Close)
		recognizer = plate.NewRecognizer(video.FileOpener{}, accidentDet, engine, plate.Config{
			Stride:           cfg.Plate.Stride,
			MinOCRConfidence: cfg.Plate.MinOCRConfidence,
			MinCropSide:      cfg.Plate.MinCropSide,
		}, m, rt.log)
	}

	cascade := pipeline.NewCascade(accidentDet, severityDet, objectDet, pipeline.Config{
		AccidentStride:      cfg.Pipeline.AccidentStride,
		CropSize:            cfg.Pipeline.CropSize,
		SnapshotCount:       cfg.Pipeline.SnapshotCount,
		Workers:             cfg.Pipeline.Workers,
		ObjectMinConfidence: cfg.Pipeline.ObjectMinConfidence,
	}, m, rt.log)

	store, closeStore := repository.Open(ctx, db.Config{
		DSN:             cfg.Database.DSN,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, m, rt.log)
	a.closers = append(a.closers, closeStore)

	a.service = service.NewAccidentService(video.FileOpener{}, cascade, recognizer, store, service.Config{
		WorkDir:        cfg.Storage.WorkDir,
		CollageDir:     cfg.Collage.OutputDir,
		Collage:        collageOptions(cfg.Collage),
		PlateStride:    cfg.Plate.Stride,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
	}, m, rt.log)
	return a, nil
}

func (a *app) loadDetector(name, path string, mc config.ModelsConfig) (*vision.YOLO, error) {
	det, err := vision.NewYOLO(vision.YOLOConfig{
		Name:          name,
		ModelPath:     path,
		InputSize:     mc.InputSize,
		MinConfidence: mc.MinConfidence,
		NMSThreshold:  mc.NMSThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model: %w", name, err)
	}
	a.closers = append(a.closers, det.Close)
	return det, nil
}

func (a *app) fail(err error) error {
	return errors.Join(err, a.Close())
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func collageOptions(cc config.CollageConfig) collage.Options {
	opts := collage.DefaultOptions()
	opts.CellWidth = cc.CellWidth
	opts.CellHeight = cc.CellHeight
	opts.Padding = cc.Padding
	return opts
}
