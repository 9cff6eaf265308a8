// Command setup-webhook registers the bridge's webhook endpoint with Asana
// for each configured project. The bot must already be reachable at the
// target URL: Asana performs the secret handshake before answering.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"asanagram/internal/asana"
	"asanagram/internal/config"
	logx "asanagram/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		target   string
		projects []string
		timeout  time.Duration
	)
	flag.StringVarP(&cfgPath, "config", "c", "./config.json", "path to config")
	flag.StringVar(&target, "target", "", "public webhook URL (default webhook.public_url + webhook.path)")
	flag.StringSliceVarP(&projects, "project", "p", nil, "project gid, repeatable (default asana.projects)")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "per-project request timeout")
	flag.Parse()

	log := logx.NewConsole("INFO").With(logx.String("comp", "setup-webhook"))
	if err := run(log, cfgPath, target, projects, timeout); err != nil {
		log.Error("setup failed", logx.Err(err))
		os.Exit(1)
	}
}

func run(log logx.Logger, cfgPath, target string, projects []string, timeout time.Duration) error {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Asana.Token) == "" {
		return errors.New("asana.token is required")
	}
	if target == "" {
		target = webhookTarget(cfg.Webhook.PublicURL, cfg.Webhook.Path)
	}
	if target == "" {
		return errors.New("no target: set --target or webhook.public_url")
	}
	if len(projects) == 0 {
		projects = cfg.Asana.Projects
	}
	if len(projects) == 0 {
		return errors.New("no projects: set --project or asana.projects")
	}

	client := asana.New(asana.Options{
		BaseURL:    cfg.Asana.BaseURL,
		Token:      cfg.Asana.Token,
		MaxRetries: cfg.Asana.MaxRetries,
		UserAgent:  "asanagram-setup",
	})

	var failed int
	for _, gid := range projects {
		gid = strings.TrimSpace(gid)
		if gid == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		wh, err := client.CreateWebhook(ctx, gid, target, asana.DefaultWebhookFilters())
		cancel()
		if err != nil {
			failed++
			log.Error("webhook not created", logx.String("project", gid), logx.Err(err))
			continue
		}
		log.Info("webhook created",
			logx.String("project", gid),
			logx.String("webhook", wh.GID),
			logx.Bool("active", wh.Active),
			logx.String("target", wh.Target),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed", failed, len(projects))
	}
	return nil
}

// webhookTarget joins the public base URL and the listen path.
func webhookTarget(publicURL, path string) string {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return ""
	}
	if path == "" {
		path = "/webhook"
	}
	return strings.TrimRight(publicURL, "/") + "/" + strings.TrimLeft(path, "/")
}
