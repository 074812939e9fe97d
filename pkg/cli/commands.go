package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/ipc"
	"github.com/go-artifactdelivery/pkg/progress"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open PATH",
		Short: "open an artifact with its default application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.service.OpenFile(a.ctx, args[0])
			if err != nil {
				return err
			}
			a.println(msg)
			return nil
		},
	}
}

func newRevealCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reveal PATH",
		Short: "show an artifact in the file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.service.RevealFile(a.ctx, args[0])
			if err != nil {
				return err
			}
			a.println(msg)
			return nil
		},
	}
}

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install PATH",
		Short: "start the platform installer for an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.service.InstallArtifact(a.ctx, args[0])
			if err != nil {
				return err
			}
			a.println(msg)
			return nil
		},
	}
}

func newWritablePathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "writable-path FILE_NAME",
		Short: "print a writable destination path for a file name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.service.GetWritablePath(a.ctx, args[0])
			if err != nil {
				return err
			}
			a.println(p)
			return nil
		},
	}
}

type downloadOptions struct {
	dest string
	name string
}

func newDownloadCmd(a *app) *cobra.Command {
	o := &downloadOptions{}

	cmd := &cobra.Command{
		Use:   "download URL [URL...]",
		Short: "download one or more artifacts",
		Long: `Download streams each URL to disk. With a single URL, --dest chooses the
destination; otherwise each file is placed in the first writable candidate
directory under the last element of its URL path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				msg, err := a.service.DownloadFile(a.ctx, args[0], o.dest, o.name, nil)
				if err != nil {
					return err
				}
				a.println(msg)
				return nil
			}
			if o.dest != "" || o.name != "" {
				return errors.New("--dest and --name apply to a single URL")
			}
			return a.downloadAll(args)
		},
	}

	cmd.Flags().StringVar(&o.dest, "dest", "", "absolute destination path (default: resolved from candidate directories)")
	cmd.Flags().StringVar(&o.name, "name", "", "display name used in logs and messages")
	return cmd
}

func (a *app) downloadAll(urls []string) error {
	requests := make([]artifact.DownloadRequest, 0, len(urls))
	for _, u := range urls {
		dest, err := a.service.ResolveDestination(a.ctx, u, "")
		if err != nil {
			return err
		}
		requests = append(requests, artifact.DownloadRequest{URL: u, DestinationPath: dest})
	}

	results := a.service.Downloader().DownloadAll(a.ctx, requests, a.cfg.DownloadMaxConcurrency, nil)

	var result *multierror.Error
	for _, r := range results {
		if r.Error != nil {
			result = multierror.Append(result, r.Error)
			continue
		}
		a.println(fmt.Sprintf("Downloaded %s to %s (%s)", r.Request.Name(), r.Artifact.Path, progress.FormatBytes(uint64(r.Artifact.SizeBytes))))
	}
	return result.ErrorOrNil()
}

type saveOptions struct {
	from string
	name string
}

func newSaveCmd(a *app) *cobra.Command {
	o := &saveOptions{}

	cmd := &cobra.Command{
		Use:   "save DEST_PATH",
		Short: "decode a base64 payload into a file",
		Long: `Save decodes a base64 payload, optionally prefixed with a data URL header,
into DEST_PATH chunk by chunk. The payload is read from --from, or from
standard input when --from is "-" or omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if o.from != "" && o.from != "-" {
				f, err := os.Open(o.from)
				if err != nil {
					return errors.Wrapf(err, "failed to open payload %s", o.from)
				}
				defer f.Close()
				r = f
			}

			msg, err := a.service.SaveDownloadedFileFrom(a.ctx, args[0], r, o.name)
			if err != nil {
				return err
			}
			a.println(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.from, "from", "-", "file holding the encoded payload")
	cmd.Flags().StringVar(&o.name, "name", "", "display name used in logs and messages")
	return cmd
}

type serveOptions struct {
	socket string
}

func newServeCmd(a *app) *cobra.Command {
	o := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "answer JSON-lines requests on stdio or a Unix socket",
		Long: `Serve reads one JSON request per line and writes one JSON response per
request. Download requests also produce "download-progress" events tagged
with the request id. Commands: ` + strings.Join([]string{
			ipc.CommandOpenFile, ipc.CommandRevealFile, ipc.CommandGetWritablePath,
			ipc.CommandDownloadFile, ipc.CommandSaveDownloadedFile, ipc.CommandInstallArtifact,
			ipc.CommandCancel,
		}, ", ") + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := ipc.NewServer(a.service, a.logger)
			if o.socket != "" {
				return server.ListenUnix(a.ctx, o.socket)
			}
			a.logger.Info("Serving on stdio")
			err := server.Serve(a.ctx, cmd.InOrStdin(), a.out)
			if a.ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&o.socket, "socket", "", "listen on this Unix socket instead of stdio (e.g. "+ipc.DefaultSocketPath(fmt.Sprint(os.Getuid()))+")")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "artifactdelivery %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
