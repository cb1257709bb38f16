package cardsuitecli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/phillip-england/cardsuite/internal/envutil"
)

const tailwindVersion = "v3.4.17"

// cssBuild is one tailwind compile. The dashboard embeds Output, so a
// rebuild needs a recompile of the binary to ship.
type cssBuild struct {
	Input  string
	Output string
	Config string
	Watch  bool
}

func dashboardCSS() cssBuild {
	dir := filepath.Join("internal", "dashboard")
	return cssBuild{
		Input:  filepath.Join(dir, "assets", "tailwind.input.css"),
		Output: filepath.Join(dir, "static", "app.css"),
		Config: filepath.Join(dir, "tailwind.config.js"),
	}
}

func (b cssBuild) args() []string {
	args := []string{"-i", b.Input, "-o", b.Output, "--config", b.Config}
	if b.Watch {
		return append(args, "--watch")
	}
	return append(args, "--minify")
}

func runAssets(args []string) error {
	fs := flag.NewFlagSet("assets", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "rebuild app.css when templates change")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return usageError()
		}
		return err
	}
	if fs.NArg() == 1 && isHelpArg(fs.Arg(0)) {
		return usageError()
	}
	if fs.NArg() != 1 || fs.Arg(0) != "build" {
		return fmt.Errorf("%w: usage: cardsuite assets build [--watch]", ErrUsage)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	build := dashboardCSS()
	build.Watch = *watch
	return buildCSS(ctx, build)
}

func buildCSS(ctx context.Context, build cssBuild) error {
	if _, err := os.Stat(build.Input); err != nil {
		return fmt.Errorf("tailwind input %s: %w (run from the repository root)", build.Input, err)
	}
	if err := os.MkdirAll(filepath.Dir(build.Output), 0o755); err != nil {
		return fmt.Errorf("create assets directory: %w", err)
	}

	bin, err := tailwindBinary(ctx)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin, build.args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if build.Watch && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("build tailwind css: %w", err)
	}
	fmt.Printf("wrote %s\n", build.Output)
	return nil
}

// tailwindBinary prefers TAILWIND_BIN, then a tailwindcss on PATH, and
// finally downloads the pinned standalone release into bin/.
func tailwindBinary(ctx context.Context) (string, error) {
	if bin := envutil.Or("TAILWIND_BIN", ""); bin != "" {
		return bin, nil
	}
	if bin, err := exec.LookPath("tailwindcss"); err == nil {
		return bin, nil
	}
	local := localTailwindBinaryPath()
	if err := downloadTailwind(ctx, local); err != nil {
		return "", err
	}
	return local, nil
}

func downloadTailwind(ctx context.Context, destination string) error {
	if info, err := os.Stat(destination); err == nil && info.Mode()&0o111 != 0 {
		return nil
	}

	assetName, err := tailwindReleaseAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("create bin directory: %w", err)
	}

	url := fmt.Sprintf("https://github.com/tailwindlabs/tailwindcss/releases/download/%s/%s", tailwindVersion, assetName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("prepare tailwind download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download tailwindcss binary: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download tailwindcss binary: unexpected status %s", resp.Status)
	}

	tmp := destination + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("create temporary tailwind binary: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write tailwind binary: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temporary tailwind binary: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmp, 0o755); err != nil {
			return fmt.Errorf("mark tailwind binary executable: %w", err)
		}
	}
	if err := os.Rename(tmp, destination); err != nil {
		return fmt.Errorf("install tailwind binary: %w", err)
	}
	return nil
}

func localTailwindBinaryPath() string {
	name := "tailwindcss"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join("bin", name)
}

func tailwindReleaseAssetName(goos, goarch string) (string, error) {
	names := map[string]string{
		"darwin/arm64":  "tailwindcss-macos-arm64",
		"darwin/amd64":  "tailwindcss-macos-x64",
		"linux/amd64":   "tailwindcss-linux-x64",
		"linux/arm64":   "tailwindcss-linux-arm64",
		"windows/amd64": "tailwindcss-windows-x64.exe",
		"windows/arm64": "tailwindcss-windows-arm64.exe",
	}
	if name, ok := names[goos+"/"+goarch]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unsupported platform for automatic tailwind install: %s/%s", goos, goarch)
}
