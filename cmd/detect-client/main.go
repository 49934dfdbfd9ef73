package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/Tutortoise/tumor-detection-service/client"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	addr := flag.String("addr", client.DefaultBaseURL, "detection service base URL")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
	outDir := flag.String("out", "", "write annotated copies of uploaded images into this directory")
	flag.Parse()

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			return err
		}
	}

	app := &consoleApp{
		api:    client.New(*addr, *timeout),
		outDir: *outDir,
		out:    os.Stdout,
	}

	if flag.NArg() > 0 {
		failed := 0
		for _, path := range flag.Args() {
			if !app.detect(path) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, flag.NArg())
		}
		return nil
	}

	return app.repl()
}

type consoleApp struct {
	api    *client.Client
	outDir string
	out    io.Writer
}

func (a *consoleApp) repl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "image> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".detect-client-history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(a.out, "Enter an image path, \"health\" or \"quit\".")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return nil
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "health":
			a.health()
		default:
			a.detect(line)
		}
	}
}

func (a *consoleApp) health() {
	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	defer cancel()

	h, err := a.api.Health(ctx)
	if err != nil {
		client.RenderError(a.out, "health", err)
		return
	}
	fmt.Fprintf(a.out, "status=%s model_loaded=%v model_path=%s\n", h.Status, h.ModelLoaded, h.ModelPath)
}

func (a *consoleApp) detect(path string) bool {
	resp, err := a.api.DetectFile(context.Background(), path)
	if err != nil {
		client.RenderError(a.out, path, err)
		return false
	}
	client.RenderCards(a.out, path, resp)

	if a.outDir == "" {
		return true
	}
	img, err := imaging.Open(path)
	if err != nil {
		client.RenderError(a.out, path, fmt.Errorf("open for annotation: %w", err))
		return true
	}
	dst := filepath.Join(a.outDir, annotatedName(path))
	if err := client.SaveAnnotated(dst, img, resp.Detections); err != nil {
		client.RenderError(a.out, path, fmt.Errorf("save annotation: %w", err))
		return true
	}
	fmt.Fprintf(a.out, "  annotated image: %s\n", dst)
	return true
}

// annotatedName keeps formats imaging can write and falls back to PNG.
func annotatedName(path string) string {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return stem + ".detections" + ext
	default:
		return stem + ".detections.png"
	}
}
