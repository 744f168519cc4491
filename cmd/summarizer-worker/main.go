/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"github.com/alecthomas/kong"

	"github.com/orca-swarm/summarizer-worker/pkg/logging"
)

// CLI is the summarizer-worker command line.
type CLI struct {
	Log   LogFlags `embed:"" prefix:"log-"`
	Serve ServeCmd `cmd:"" default:"1" help:"Serve the worker task endpoint."`
}

// LogFlags configures process logging.
type LogFlags struct {
	Level       string   `help:"Log level (debug, info, warn, error)" default:"info" env:"LOG_LEVEL"`
	Format      string   `help:"Log format (console, json)" default:"json" env:"LOG_FORMAT"`
	Output      []string `help:"Log outputs: stdout, stderr or file paths" default:"stdout" env:"LOG_OUTPUT"`
	Development bool     `help:"Human friendly development logging" env:"LOG_DEVELOPMENT"`
	Rotate      bool     `help:"Rotate file outputs" env:"LOG_ROTATE"`
	MaxSizeMB   int      `help:"Rotate after this many megabytes" default:"100" env:"LOG_MAX_SIZE_MB"`
	MaxBackups  int      `help:"Rotated files to keep" default:"5" env:"LOG_MAX_BACKUPS"`
}

func (l LogFlags) options() logging.Options {
	return logging.Options{
		Level:       l.Level,
		Format:      l.Format,
		Outputs:     l.Output,
		Development: l.Development,
		Rotation: logging.Rotation{
			Enable:     l.Rotate,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			Compress:   true,
		},
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("summarizer-worker"),
		kong.Description("Accepts repository summarization tasks and reports their pull requests."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
