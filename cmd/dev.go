//go:build dev
// +build dev

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"logforwarder/pkg/rules"
	"logforwarder/pkg/shipper"
	"logforwarder/pkg/storage"
	"logforwarder/pkg/stream"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ctx               context.Context
	allExamples       *bool
	outputRecords     *bool
	allExamplesFolder string
	testFileName      string
	rulesTestFile     string
	outputFolder      string
	jsonContentType   string
	expandField       string
)

func init() {
	logLevelStr := os.Getenv("LOG_LEVEL")

	logLevel, err := zerolog.ParseLevel(logLevelStr)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.TimestampFunc = func() time.Time { return time.Now().In(time.UTC) }
	zerolog.SetGlobalLevel(logLevel)
	zerolog.ErrorFieldName = "error"
	zerolog.MessageFieldName = "msg"

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx = context.Background()
	ctx = logger.WithContext(ctx)

	allExamples = flag.Bool("all", false, "Run all examples")
	outputRecords = flag.Bool("output", true, "Write decoded events to the out_test folder")
	flag.StringVar(&allExamplesFolder, "folder", "./examples", "Folder for multiple example files")
	flag.StringVar(&rulesTestFile, "rules", "./rules-test.yaml", "Optional drop-rules yaml file")
	flag.StringVar(&testFileName, "file", "./examples/cloudtrail.json", "Test file")
	flag.StringVar(&outputFolder, "out", "./out_test", "Output folder for decoded events")
	flag.StringVar(&jsonContentType, "json", string(stream.JSONNDJSON), "JSON collector mode: disabled, single, ndjson")
	flag.StringVar(&expandField, "expand-field", "", "Dotted field path to explode into one event per array element")
	flag.Parse()

	if *outputRecords {
		if err := os.MkdirAll(outputFolder, 0755); err != nil {
			log.Error().Err(err).Msg("failed to create output folder")
		}
	}
}

// localFileReader is a storage.Reader over a file on disk, letting this
// tool exercise the exact same decode stack (inflate -> by_lines ->
// multiline -> json_collector) the Lambda handler drives over S3
// objects, without needing real AWS credentials.
type localFileReader struct {
	path string
	caps storage.Capabilities
}

func (r *localFileReader) Capabilities() storage.Capabilities { return r.caps }

func (r *localFileReader) GetByLines(_ context.Context, rangeStart int64) (stream.Stage, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}

	isGzipped := strings.HasSuffix(r.path, ".gz") || strings.HasSuffix(r.path, ".gzip")
	inflated, err := stream.NewInflateStage(f, isGzipped, rangeStart)
	if err != nil {
		return nil, fmt.Errorf("inflate %s: %w", r.path, err)
	}

	return stream.NewByLinesStage(inflated, rangeStart), nil
}

func loadRulesCfg() *rules.CachedConfiguration {
	if _, err := os.Stat(rulesTestFile); err != nil {
		log.Debug().Str("file", rulesTestFile).Msg("no drop-rules file found, running unfiltered")
		return nil
	}

	rulesCfg, err := rules.LoadFromConfigFile(ctx, rulesTestFile)
	if err != nil {
		log.Warn().Err(err).Str("file", rulesTestFile).Msg("failed to load drop rules, running unfiltered")
		return nil
	}
	if err := rulesCfg.Validate(); err != nil {
		log.Warn().Err(err).Str("file", rulesTestFile).Msg("invalid drop rules, running unfiltered")
		return nil
	}

	cached, err := rules.PrepareConfiguration(rulesCfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to prepare drop rules, running unfiltered")
		return nil
	}
	return cached
}

// decodedEvent pairs one fully-decoded record with the dataset and
// index it would ship to, for local inspection.
type decodedEvent struct {
	Dataset string          `json:"dataset"`
	Index   string          `json:"index"`
	Offset  int64           `json:"ending_offset"`
	Event   json.RawMessage `json:"event"`
}

func processFile(fileName string, cachedCfg *rules.CachedConfiguration) error {
	start := time.Now()

	caps := storage.Capabilities{
		JSONContentType: stream.JSONContentType(jsonContentType),
	}
	if expandField != "" {
		caps.EventListFromFieldExpander = &stream.FieldExpander{Field: expandField}
	}

	reader := &localFileReader{path: fileName, caps: caps}
	byLines, err := reader.GetByLines(ctx, 0)
	if err != nil {
		return err
	}

	stage := stream.NewMultilineStage(byLines, caps.MultilineProcessor, 0)
	stage = stream.NewJSONCollectorStage(stage, 0, stream.JSONCollectorConfig{
		ContentType:        caps.JSONContentType,
		Expander:           caps.EventListFromFieldExpander,
		MultilineInstalled: caps.MultilineProcessor != nil,
	})

	dataset := shipper.ClassifyDataset(fileName)
	index := shipper.IndexName(dataset, "dev")

	var kept, dropped int
	var out []decodedEvent

	for {
		rec, ok, err := stage.Next()
		if err != nil {
			return fmt.Errorf("decode %s: %w", fileName, err)
		}
		if !ok {
			break
		}

		if cachedCfg != nil {
			var evt map[string]any
			if err := json.Unmarshal(rec.Payload, &evt); err == nil {
				if drop, _, err := cachedCfg.EvalRules(evt); err == nil && drop {
					dropped++
					continue
				}
			}
		}

		kept++
		out = append(out, decodedEvent{
			Dataset: dataset,
			Index:   index,
			Offset:  rec.EndingOffset,
			Event:   json.RawMessage(rec.Payload),
		})
	}

	log.Warn().
		Int("kept", kept).
		Int("dropped", dropped).
		Str("dataset", dataset).
		Str("exeTime", fmt.Sprint(time.Since(start))).
		Str("fileName", fileName).
		Msg("completed")

	if *outputRecords {
		baseName := fileName
		if idx := strings.LastIndex(fileName, "/"); idx >= 0 {
			baseName = fileName[idx+1:]
		}
		baseName = strings.TrimSuffix(strings.TrimSuffix(baseName, ".gz"), ".json")
		outputPath := fmt.Sprintf("%s/%s_decoded.json", outputFolder, baseName)
		writeJSONToFile(outputPath, out)
		log.Info().Str("output", outputPath).Msg("wrote decoded events")
	}

	return nil
}

func writeJSONToFile(fileName string, data any) {
	file, err := os.Create(fileName)
	if err != nil {
		log.Error().Err(err).Str("file", fileName).Msg("failed to create file")
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.Error().Err(err).Str("file", fileName).Msg("failed to encode data")
	}
}

func main() {
	start := time.Now()
	cachedCfg := loadRulesCfg()

	if *allExamples {
		files, err := os.ReadDir(allExamplesFolder)
		if err != nil {
			log.Fatal().Err(err).Msg(fmt.Sprintf("failed to read directory: %s", allExamplesFolder))
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			fileName := fmt.Sprintf("%s/%s", allExamplesFolder, file.Name())
			log.Info().Str("file", fileName).Msg("processing file")

			if err := processFile(fileName, cachedCfg); err != nil {
				log.Error().Err(err).Str("file", fileName).Msg("failed to process file")
			}
		}
	} else {
		log.Info().Str("file", testFileName).Msg("processing single file")
		if err := processFile(testFileName, cachedCfg); err != nil {
			log.Fatal().Err(err).Str("file", testFileName).Msg("failed to process file")
		}
	}

	fmt.Printf("\nExecution time: %s\n", time.Since(start))
	fmt.Printf("Output folder: %s\n", outputFolder)
}
