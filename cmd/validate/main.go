package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/codec"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/engine"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/fsutil"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/history"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/mask"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/pipeline"
)

// Names the inference sidecar serves the two models under.
const (
	remoteAutoencoder = "tae"
	remoteClassifier  = "classifier"
)

// #region main
func main() {
	kindTag := flag.String("kind", "autoencoder", `model type: "autoencoder", "classifier partial" or "classifier full"`)
	modelName := flag.String("model-name", "", "run name, e.g. TAE_dm128_nh8_nl4_lr0.0001")
	splitPath := flag.String("split", "", "validation split JSON")
	batchSize := flag.Int("batch-size", 256, "records per batch")
	outputVars := flag.Int("output-vars", 4, "autoencoder output width (3 or 4)")
	maskFlag := flag.String("mask", "none", `mask selector: "none", 0 (particle) or a kinematic width`)
	epoch := flag.Int("epoch", -1, "0-based epoch index; -1 continues after the last recorded epoch")
	numEpochs := flag.Int("num-epochs", 1, "total epochs of the run")
	saveDir := flag.String("save-dir", "checkpoints", "directory for best-weight artifacts")
	device := flag.String("device", "cpu", "compute device passed to model calls")
	formatFlag := flag.String("format", "json", `artifact format: "json" or "proto"`)
	seed := flag.Int64("seed", 0, "masking seed (0 = unseeded)")
	aePath := flag.String("ae", "", "local autoencoder artifact")
	clfPath := flag.String("clf", "", "local classifier artifact")
	aeAddr := flag.String("ae-addr", envOr("TAE_AE_ADDR", ""), "inference service serving the autoencoder")
	clfAddr := flag.String("clf-addr", envOr("TAE_CLF_ADDR", ""), "inference service serving the classifier")
	dbPath := flag.String("db", envOr("TAE_HISTORY_DB", "validation_history.db"), "epoch history database")
	newRun := flag.Bool("new-run", false, "start a new history run instead of continuing the latest one")
	outputsDir := flag.String("outputs", envOr("TAE_OUTPUTS_DIR", "./outputs"), "root of the run config records")
	flag.Parse()

	kind, err := pipeline.ParseKind(*kindTag)
	if err != nil {
		log.Fatalf("invalid -kind: %v", err)
	}
	sel, err := mask.ParseSelector(*maskFlag)
	if err != nil {
		log.Fatalf("invalid -mask: %v", err)
	}
	format, err := checkpoint.ParseFormat(*formatFlag)
	if err != nil {
		log.Fatalf("invalid -format: %v", err)
	}
	if *modelName == "" || *splitPath == "" {
		fmt.Fprintln(os.Stderr, "usage: validate -model-name NAME -split split.json [-kind K] [-ae path | -ae-addr host:port] [-clf path | -clf-addr host:port]")
		os.Exit(2)
	}

	loader, err := data.LoadSplit(*splitPath, *batchSize)
	if err != nil {
		log.Fatalf("failed to load split: %v", err)
	}

	// Initialize history store
	store, err := history.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open history: %v", err)
	}
	defer store.Close()

	models, closeModels, err := loadModels(kind, *aePath, *aeAddr, *clfPath, *clfAddr)
	if err != nil {
		log.Fatalf("failed to load models: %v", err)
	}
	defer closeModels()

	state, err := engine.ResumeState(store, *modelName, kind, *newRun)
	if err != nil {
		log.Fatalf("failed to read history: %v", err)
	}
	if state.RunID != "" {
		log.Printf("Resuming run %s after epoch %d (best %.4f)", state.RunID, state.ResumeEpoch, state.BestLoss)
	}
	if *epoch < 0 {
		*epoch = state.NextEpoch()
	}

	if err := fsutil.EnsureDir(*saveDir); err != nil {
		log.Fatalf("failed to create save dir: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.OutputsDir = *outputsDir
	cfg.Format = format
	cfg.Seed = *seed
	cfg.Recorder = store
	eng := engine.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	state, out, err := eng.Validate(ctx, engine.Request{
		Loader:     loader,
		Models:     models,
		Device:     *device,
		Kind:       kind,
		OutputVars: *outputVars,
		Mask:       sel,
		Epoch:      *epoch,
		NumEpochs:  *numEpochs,
		SaveDir:    *saveDir,
		ModelName:  *modelName,
	}, state)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}

	if out.Improved {
		log.Printf("Saved best weights to %s", out.ArtifactPath)
	}
	log.Printf("run=%s best=%.4f config=%s", state.RunID, state.BestLoss, out.ConfigPath)
}
// #endregion main

// #region models
// loadModels returns the autoencoder and, for classifier kinds, the classifier.
// A remote address takes precedence over a local artifact.
func loadModels(kind pipeline.Kind, aePath, aeAddr, clfPath, clfAddr string) ([]model.Module, func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	dial := func(addr string) (*codec.InferenceClient, error) {
		client, err := codec.NewInferenceClient(addr)
		if err != nil {
			return nil, err
		}
		closers = append(closers, client.Close)
		return client, nil
	}

	var ae model.Module
	switch {
	case aeAddr != "":
		client, err := dial(aeAddr)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect autoencoder at %s: %w", aeAddr, err)
		}
		ae = codec.NewRemoteAutoencoder(client, remoteAutoencoder)
	case aePath != "":
		a, err := loadArtifact(aePath)
		if err != nil {
			return nil, nil, err
		}
		local, err := model.LinearAutoencoderFromArtifact(a)
		if err != nil {
			return nil, nil, fmt.Errorf("autoencoder %s: %w", aePath, err)
		}
		ae = local
	default:
		return nil, nil, errors.New("no autoencoder: pass -ae or -ae-addr")
	}
	if kind.ModelCount() == 1 {
		return []model.Module{ae}, closeAll, nil
	}

	var clf model.Module
	switch {
	case clfAddr != "":
		client, err := dial(clfAddr)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect classifier at %s: %w", clfAddr, err)
		}
		clf = codec.NewRemoteClassifier(client, remoteClassifier)
	case clfPath != "":
		a, err := loadArtifact(clfPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		local, err := model.LinearClassifierFromArtifact(a)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("classifier %s: %w", clfPath, err)
		}
		clf = local
	default:
		closeAll()
		return nil, nil, errors.New("no classifier: pass -clf or -clf-addr")
	}
	return []model.Module{ae, clf}, closeAll, nil
}

// loadArtifact reads JSON artifacts and falls back to the protobuf encoding.
func loadArtifact(path string) (checkpoint.Artifact, error) {
	a, err := checkpoint.LoadArtifact(path, checkpoint.FormatJSON)
	if err == nil {
		return a, nil
	}
	a, perr := checkpoint.LoadArtifact(path, checkpoint.FormatProto)
	if perr != nil {
		return checkpoint.Artifact{}, err
	}
	return a, nil
}
// #endregion models

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
