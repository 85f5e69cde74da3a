package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mediafetch/cmd"
	"mediafetch/config"
	"mediafetch/logger"
	"mediafetch/types"

	"go.uber.org/zap"
)

func main() {
	var (
		source  string
		title   string
		channel string
		artist  string
		album   string
		genre   string
		year    string
		noThumb bool
		server  bool
		port    int
	)

	flag.StringVar(&source, "source", "", "Video URL or id to extract audio from")
	flag.StringVar(&title, "title", "", "Title used for the file name")
	flag.StringVar(&channel, "channel", "", "Channel used for the file name")
	flag.StringVar(&artist, "artist", "", "Artist tag")
	flag.StringVar(&album, "album", "", "Album tag")
	flag.StringVar(&genre, "genre", "", "Genre tag")
	flag.StringVar(&year, "year", "", "Year tag")
	flag.BoolVar(&noThumb, "no-thumbnail", false, "Do not embed the thumbnail as cover art")
	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 0, "Port for web server mode (overrides SERVER_PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if port > 0 {
		cfg.ServerPort = port
	}

	zlog, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	// Server mode takes precedence
	if server {
		if err := cmd.StartWebServer(cfg, zlog); err != nil {
			zlog.Fatal("Server stopped", zap.Error(err))
		}
		return
	}

	if source == "" {
		flag.Usage()
		return
	}

	req := types.SubmitJobRequest{
		SourceReference: source,
		Format:          types.FormatMP3,
		Title:           title,
		Channel:         channel,
		Metadata: &types.Metadata{
			Title:  title,
			Artist: artist,
			Album:  album,
			Genre:  genre,
			Year:   year,
		},
	}
	if noThumb {
		embed := false
		req.EmbedThumbnail = &embed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := cmd.Fetch(ctx, cfg, zlog, req, os.Stderr)
	if err != nil {
		zlog.Sync()
		log.Fatalf("Cannot fetch %s: %s", source, err)
	}

	fmt.Println(job.ResultPath)
	if job.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", job.Warning)
	}
}
