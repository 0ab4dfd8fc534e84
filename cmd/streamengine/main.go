// Command streamengine runs one query end to end: a single source feeding
// a single sink through the task queue, the minimal shape every pipeline
// in this engine reduces to once windowing and joins are stripped away.
// Flags follow the engine's config layer (pkg/engineconfig) the same way
// noisefs's CLI layers flags over its own config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/engineconfig"
	"github.com/nebulacore/streamengine/pkg/enginelog"
	"github.com/nebulacore/streamengine/pkg/network"
	"github.com/nebulacore/streamengine/pkg/pipeline"
	"github.com/nebulacore/streamengine/pkg/sink"
	"github.com/nebulacore/streamengine/pkg/source"
	"github.com/nebulacore/streamengine/pkg/task"
)

func main() {
	var (
		configFile = flag.String("config", "", "engine configuration file path")

		sourceKind = flag.String("source", "tcp", "source kind: tcp|file")
		tcpHost    = flag.String("tcp-host", "127.0.0.1", "tcp source: host to dial")
		tcpPort    = flag.Int("tcp-port", 9000, "tcp source: port to dial")
		fileDir    = flag.String("file-dir", "", "file source: directory to watch and replay")
		separator  = flag.String("separator", "\n", "tuple-separator framing: record delimiter")
		originID   = flag.Uint64("origin-id", 1, "origin id stamped on every buffer this query produces")

		sinkKind   = flag.String("sink", "null", "sink kind: null|file|network")
		outPath    = flag.String("out", "", "file sink: output file path")
		netAddr    = flag.String("net-addr", "", "network sink: ws://host:port URL to dial")
		channelID  = flag.String("channel-id", "default", "network sink: channel id to announce")
		tupleWidth = flag.Int("tuple-width", 8, "fixed width in bytes of one tuple")

		quiet = flag.Bool("quiet", false, "suppress informational logging")
	)
	flag.Parse()

	cfg, err := engineconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streamengine: %v\n", err)
		os.Exit(1)
	}

	logLevel, levelErr := enginelog.ParseLevel(cfg.Logging.Level)
	if levelErr != nil {
		logLevel = enginelog.InfoLevel
	}
	if *quiet {
		logLevel = enginelog.ErrorLevel
	}
	logFormat := enginelog.TextFormat
	if cfg.Logging.Format == "json" {
		logFormat = enginelog.JSONFormat
	}
	logger := enginelog.New(&enginelog.Config{Level: logLevel, Format: logFormat, Output: os.Stdout}).WithComponent("streamengine")

	pool, err := buffer.NewPool(buffer.Config{
		Name:         "global",
		SegmentSize:  cfg.Buffer.SegmentSize,
		Alignment:    cfg.Buffer.Alignment,
		Capacity:     cfg.Buffer.Capacity,
		StandbyLimit: cfg.Buffer.StandbyLimit,
	})
	if err != nil {
		logger.Error("failed to create buffer pool", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Shutdown()

	queue := task.NewQueue(cfg.Worker.QueueSize)
	workerPool, err := task.NewWorkerPool(queue, cfg.Worker.Count, pool, 0, logger)
	if err != nil {
		logger.Error("failed to start worker pool", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	sinkPipeline, err := buildSink(*sinkKind, *outPath, *netAddr, *channelID, *tupleWidth, cfg)
	if err != nil {
		logger.Error("failed to build sink", map[string]interface{}{"sink": *sinkKind, "error": err.Error()})
		os.Exit(1)
	}

	sinkCtx := pipeline.NewContext(pipeline.NewHandlerStore(0), queue, pool)
	sinkNode := &pipeline.Node{Name: "sink." + *sinkKind, Pipeline: sinkPipeline, Ctx: sinkCtx}
	if sp, ok := sinkPipeline.(*network.SenderPipeline); ok {
		sp.BindSelf(sinkNode)
	}
	if err := sinkPipeline.Setup(sinkCtx); err != nil {
		logger.Error("sink setup failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	src, parser, err := buildSource(*sourceKind, *tcpHost, *tcpPort, *fileDir, []byte(*separator)[0], *tupleWidth, cfg)
	if err != nil {
		logger.Error("failed to build source", map[string]interface{}{"source": *sourceKind, "error": err.Error()})
		os.Exit(1)
	}

	runtimeCfg := source.Config{Mode: source.IntervalMode, GatheringInterval: 0}
	rt := source.NewRuntime(src, parser, pool, sinkNode, queue, *originID, runtimeCfg, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received", nil)
		cancel()
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- rt.Run(runCtx)
	}()

	select {
	case err := <-runErr:
		if err != nil {
			logger.Error("source runtime exited with error", map[string]interface{}{"error": err.Error()})
		} else {
			logger.Info("source exhausted, draining", nil)
		}
	case <-runCtx.Done():
		<-runErr
	}

	rt.Stop()
	if err := workerPool.StopGraceful([]*pipeline.Node{sinkNode}); err != nil {
		logger.Error("graceful stop failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("query finished", map[string]interface{}{"queue": queue.String()})
}

func buildSink(kind, outPath, netAddr, channelID string, tupleWidth int, cfg *engineconfig.Config) (pipeline.Pipeline, error) {
	switch kind {
	case "null":
		return sink.NewNullSink(), nil
	case "file":
		if outPath == "" {
			return nil, fmt.Errorf("-out is required for sink=file")
		}
		return sink.NewFileSink(outPath, tupleWidth)
	case "network":
		if netAddr == "" {
			return nil, fmt.Errorf("-net-addr is required for sink=network")
		}
		retryDelay := time.Duration(cfg.Network.DialTimeoutMillis) * time.Millisecond / 10
		return sink.NewNetworkSink(netAddr, channelID, tupleWidth, cfg.Network.LowWatermarkDeque, cfg.Network.HighWatermarkDeque, retryDelay, nil)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", kind)
	}
}

func buildSource(kind, tcpHost string, tcpPort int, fileDir string, separator byte, tupleWidth int, cfg *engineconfig.Config) (source.Source, source.Parser, error) {
	parser := rawParser{width: tupleWidth}
	switch kind {
	case "tcp":
		tcpCfg := source.TCPConfig{
			Host:            tcpHost,
			Port:            tcpPort,
			Framing:         source.TupleSeparator,
			Separator:       separator,
			FlushInterval:   time.Duration(cfg.TCP.FlushIntervalMillis) * time.Millisecond,
			RingPages:       cfg.TCP.RingBufferPages,
			LengthByteWidth: cfg.TCP.LengthPrefixWidth,
			FixedSizeBytes:  cfg.TCP.FixedBufferSize,
		}
		return source.NewTCPSource(tcpCfg), parser, nil
	case "file":
		if fileDir == "" {
			return nil, nil, fmt.Errorf("-file-dir is required for source=file")
		}
		return source.NewFileSource(fileDir, separator), parser, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// rawParser copies each framed message's raw bytes directly into the
// destination tuple, truncating or zero-padding to width. It stands in for
// a schema-aware parser: the engine's buffer layout is schema-agnostic, so
// a CLI with no compiled query plan has nothing richer to parse into.
type rawParser struct {
	width int
}

func (p rawParser) TupleSize() int { return p.width }

func (p rawParser) Parse(msg []byte, dst []byte) error {
	n := copy(dst, msg)
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
	return nil
}
