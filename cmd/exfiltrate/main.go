// exfiltrate is the CLI client for the embedded debugging server.
//
// Usage:
//
//	exfiltrate [--addr 127.0.0.1:1337] <command> [args...]
//
// Dials the host, allocates a reply id, sends a Command, blocks on
// pop_msg, and renders the result: String responses print to stdout,
// Bytes/Files are written to ./<5-random-alnum>.<ext>, and Images are
// encoded as PNG to ./<5-random-alnum>.png. WebP is out of scope since no
// WebP dependency is available to this module.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"image"
	"image/png"
	"net"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
	"github.com/drewcrawford/exfiltrate-sub000/internal/rpcclient"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1337", "host address (default port 1337)")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: exfiltrate [--addr host:port] <command> [args...]")
		os.Exit(1)
	}
	name, cmdArgs := args[0], args[1:]

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exfiltrate: dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := rpcclient.New(conn)

	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	progressWidth := 40
	if isTTY {
		if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > 0 {
			progressWidth = w - 10
			if progressWidth < 10 {
				progressWidth = 10
			}
		}
	}
	if isTTY {
		client.OnProgress = func(current, total int) {
			printProgress(progressWidth, current, total)
		}
	}
	client.OnIdle = func() {
		fmt.Fprintln(os.Stderr, "Waiting for reply…")
	}

	replyID := client.NextReplyID()
	if err := client.SendCommand(name, cmdArgs, replyID); err != nil {
		fmt.Fprintf(os.Stderr, "exfiltrate: send: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.PopMsg(replyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exfiltrate: %v\n", err)
		os.Exit(2)
	}

	if err := render(resp); err != nil {
		fmt.Fprintf(os.Stderr, "exfiltrate: %v\n", err)
		os.Exit(1)
	}
}

func printProgress(width, current, total int) {
	if total <= 0 {
		return
	}
	frac := float64(current) / float64(total)
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '='
		} else {
			bar[i] = ' '
		}
	}
	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d (%.0f%%)", bar, current, total, frac*100)
}

func render(resp response.Response) error {
	switch resp.Kind {
	case response.KindString:
		fmt.Println(resp.Text)
	case response.KindBytes:
		name := randomName() + ".bin"
		if err := os.WriteFile(name, resp.Bytes, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		fmt.Println(name)
	case response.KindFiles:
		for _, f := range resp.Files {
			name := randomName() + "." + f.ProposedExtension
			if err := os.WriteFile(name, f.Contents, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			fmt.Println(name)
		}
	case response.KindImages:
		for _, img := range resp.Images {
			name := randomName() + ".png"
			if err := writePNG(name, img); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			fmt.Println(name)
		}
	default:
		return fmt.Errorf("unknown response kind %v", resp.Kind)
	}
	return nil
}

func writePNG(name string, img response.Image) error {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	copy(out.Pix, img.Pixels)
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomName returns a 5-character random alphanumeric string for use as a
// bare output filename stem.
func randomName() string {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is effectively unreachable on supported
		// platforms; fall back to a timestamp-derived name rather than
		// panicking on attacker-uncontrolled local I/O.
		return fmt.Sprintf("f%d", time.Now().UnixNano()%100000)
	}
	for i, v := range b {
		b[i] = alnum[int(v)%len(alnum)]
	}
	return string(b)
}
