package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	stackgan "github.com/LdDl/stackgan-go"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	stage1Checkpoint        = "stage1.gob"
	stage2Checkpoint        = "stage2.gob"
	discriminatorCheckpoint = "discriminator.gob"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "stackgan",
		Usage: "Train and sample stage-2 StackGAN text-to-image models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"STACKGAN_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file with hyperparameters (defaults are used for missing keys)",
				EnvVars: []string{"STACKGAN_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "seed",
				Usage:   "override random seed",
				EnvVars: []string{"STACKGAN_SEED"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "Train stage-2 generator and discriminator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "embeddings", Usage: "pickled text embeddings", Required: true},
					&cli.StringFlag{Name: "filenames", Usage: "pickled list of image names", Required: true},
					&cli.StringFlag{Name: "images-dir", Usage: "directory with images", Required: true},
					&cli.StringFlag{Name: "stage1", Usage: "pretrained stage-1 generator checkpoint"},
					&cli.StringFlag{Name: "output", Usage: "directory for checkpoints, samples and charts", Value: "output"},
					&cli.IntFlag{Name: "epochs", Usage: "override number of epochs"},
					&cli.IntFlag{Name: "batch-size", Usage: "override batch size"},
					&cli.BoolFlag{Name: "flip", Usage: "mirror images horizontally at random"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return train(c, cfg)
				},
			},
			{
				Name:  "sample",
				Usage: "Generate images for embeddings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "embeddings", Usage: "pickled text embeddings", Required: true},
					&cli.StringFlag{Name: "checkpoints", Usage: "directory with stage1.gob and stage2.gob", Required: true},
					&cli.StringFlag{Name: "output", Usage: "directory for generated images", Value: "samples"},
					&cli.IntFlag{Name: "count", Usage: "number of embeddings to use", Value: 4},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return sample(c, cfg)
				},
			},
			{
				Name:  "describe",
				Usage: "Print parameters of every model",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return describe(cfg)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setDebugLevel(debugLevel string) error {
	level, err := zerolog.ParseLevel(debugLevel)
	if err != nil {
		return err
	}
	log.Logger = log.Level(level)
	return nil
}

func loadConfig(c *cli.Context) (stackgan.Config, error) {
	cfg := stackgan.DefaultConfig()
	var err error
	if fname := c.String("config"); fname != "" {
		cfg, err = stackgan.LoadConfig(fname)
		if err != nil {
			return cfg, err
		}
	}
	if c.IsSet("seed") {
		cfg.Seed = int64(c.Int("seed"))
	}
	if c.IsSet("epochs") {
		cfg.Epochs = c.Int("epochs")
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	return cfg, cfg.Validate()
}

func train(c *cli.Context, cfg stackgan.Config) error {
	output := c.String("output")
	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}
	set, err := stackgan.LoadTrainSet(c.String("embeddings"), c.String("filenames"), c.String("images-dir"))
	if err != nil {
		return err
	}
	set.Flip = c.Bool("flip")

	rng := rand.New(rand.NewSource(cfg.Seed))
	trainer, err := stackgan.NewTrainer(cfg, rng)
	if err != nil {
		return err
	}
	defer trainer.Close()

	if fname := c.String("stage1"); fname != "" {
		if err = stackgan.LoadParams(fname, trainer.Stage1.Learnables()); err != nil {
			return err
		}
		log.Info().Str("file", fname).Msg("Stage-1 generator loaded")
	} else {
		log.Warn().Msg("No stage-1 checkpoint provided: stage-2 generator will refine untrained low resolution images")
	}

	sampler, err := stackgan.NewSampler(trainer.Stage1, trainer.Stage2, cfg.BatchSize)
	if err != nil {
		return err
	}
	defer sampler.Close()
	preview, err := set.Batch(rng, firstIndices(cfg.BatchSize), cfg.NoiseDim)
	if err != nil {
		return err
	}

	saveEpoch := func(epoch int) error {
		checkpoints := []struct {
			fname string
			nodes gorgonia.Nodes
		}{
			{stage1Checkpoint, trainer.Stage1.Learnables()},
			{stage2Checkpoint, trainer.Stage2.Learnables()},
			{discriminatorCheckpoint, trainer.Discriminator.Learnables()},
		}
		for _, ckpt := range checkpoints {
			if err := stackgan.SaveParams(filepath.Join(output, ckpt.fname), ckpt.nodes); err != nil {
				return err
			}
		}
		samples, err := sampler.Sample(rng, preview.Embeddings)
		if err != nil {
			return err
		}
		names, err := stackgan.SaveImages(samples.HighResolution, filepath.Join(output, "samples"), fmt.Sprintf("epoch%03d", epoch))
		if err != nil {
			return err
		}
		log.Debug().Strs("files", names).Msg("Samples saved")
		return nil
	}
	if err = trainer.Train(set, saveEpoch); err != nil {
		return err
	}
	chart := filepath.Join(output, "losses.png")
	if err = stackgan.PlotLosses(trainer.History.Generator, trainer.History.Discriminator, chart); err != nil {
		return err
	}
	log.Info().Str("chart", chart).Msg("Done")
	return nil
}

func sample(c *cli.Context, cfg stackgan.Config) error {
	embeddings, err := stackgan.LoadEmbeddings(c.String("embeddings"))
	if err != nil {
		return err
	}
	count := c.Int("count")
	if count <= 0 || count > len(embeddings) {
		count = len(embeddings)
	}
	data := make([]float64, 0, count*cfg.EmbeddingDim)
	for i := 0; i < count; i++ {
		data = append(data, embeddings[i][0]...)
	}
	if len(data) != count*cfg.EmbeddingDim {
		return fmt.Errorf("Embeddings have size %d, model expects %d", len(embeddings[0][0]), cfg.EmbeddingDim)
	}

	g := gorgonia.NewGraph()
	stage1, err := stackgan.NewStage1Generator(g, cfg)
	if err != nil {
		return err
	}
	stage2, err := stackgan.NewStage2Generator(g, cfg)
	if err != nil {
		return err
	}
	checkpoints := c.String("checkpoints")
	if err = stackgan.LoadParams(filepath.Join(checkpoints, stage1Checkpoint), stage1.Learnables()); err != nil {
		return err
	}
	if err = stackgan.LoadParams(filepath.Join(checkpoints, stage2Checkpoint), stage2.Learnables()); err != nil {
		return err
	}
	sampler, err := stackgan.NewSampler(stage1, stage2, count)
	if err != nil {
		return err
	}
	defer sampler.Close()

	rng := rand.New(rand.NewSource(cfg.Seed))
	samples, err := sampler.Sample(rng, tensor.New(tensor.WithShape(count, cfg.EmbeddingDim), tensor.WithBacking(data)))
	if err != nil {
		return err
	}
	output := c.String("output")
	low, err := stackgan.SaveImages(samples.LowResolution, output, "stage1")
	if err != nil {
		return err
	}
	high, err := stackgan.SaveImages(samples.HighResolution, output, "stage2")
	if err != nil {
		return err
	}
	log.Info().Int("stage1", len(low)).Int("stage2", len(high)).Str("output", output).Msg("Images saved")
	return nil
}

func describe(cfg stackgan.Config) error {
	g := gorgonia.NewGraph()
	stage1, err := stackgan.NewStage1Generator(g, cfg)
	if err != nil {
		return err
	}
	stage2, err := stackgan.NewStage2Generator(g, cfg)
	if err != nil {
		return err
	}
	discriminator, err := stackgan.NewStage2Discriminator(g, cfg)
	if err != nil {
		return err
	}
	models := []struct {
		name  string
		nodes gorgonia.Nodes
	}{
		{"stage-1 generator", stage1.Learnables()},
		{"stage-2 generator", stage2.Learnables()},
		{"stage-2 discriminator", discriminator.Learnables()},
	}
	var data [][]string
	total := 0
	for _, m := range models {
		count := 0
		for _, n := range m.nodes {
			count += n.Shape().TotalSize()
		}
		total += count
		data = append(data, []string{m.name, fmt.Sprintf("%d", len(m.nodes)), fmt.Sprintf("%d", count)})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"MODEL", "TENSORS", "PARAMETERS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetFooter([]string{"", "TOTAL", fmt.Sprintf("%d", total)})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func firstIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
