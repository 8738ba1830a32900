package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net"
	"time"

	"github.com/hybridgroup/mjpeg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/swdee/go-touchtable"
	"github.com/swdee/go-touchtable/render"
	"github.com/swdee/go-touchtable/stream"
)

var (
	listenAddr    string
	listenWidth   int
	listenHeight  int
	listenPreview string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept a contour stream and log what arrives",
	Long: "Acts as the contour consumer for debugging.  Each message is summarised in the " +
		"log and, with --preview, drawn into an MJPEG feed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listen(cmd.Context())
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", touchtable.DefaultStreamAddr, "Address to accept the stream on")
	listenCmd.Flags().IntVar(&listenWidth, "width", touchtable.DefaultWidth, "Frame width used by the sender")
	listenCmd.Flags().IntVar(&listenHeight, "height", touchtable.DefaultHeight, "Frame height used by the sender")
	listenCmd.Flags().StringVar(&listenPreview, "preview", "", "Serve an MJPEG preview of received contours on this address")
	rootCmd.AddCommand(listenCmd)
}

func listen(ctx context.Context) error {

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", listenAddr)

	if err != nil {
		return fmt.Errorf("error listening on %s: %w", listenAddr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var out *mjpeg.Stream

	if listenPreview != "" {
		out = mjpeg.NewStream()
		go servePreview(ctx, listenPreview, out)
	}

	logger.WithField("addr", ln.Addr().String()).Info("waiting for stream")

	for {
		conn, err := ln.Accept()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error accepting stream: %w", err)
		}

		consume(ctx, conn, out)
	}
}

// consume reads one sender's messages until it disconnects
func consume(ctx context.Context, conn net.Conn, out *mjpeg.Stream) {

	remote := conn.RemoteAddr().String()
	clog := logger.WithField("remote", remote)

	clog.Info("sender connected")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	var (
		received int
		start    = time.Now()
	)

	onMessage := func(msg stream.Message) error {

		received++

		vertices := 0
		for _, c := range msg.Contours {
			vertices += len(c.Vertices)
		}

		clog.WithFields(log.Fields{
			"message":  received,
			"contours": len(msg.Contours),
			"vertices": vertices,
		}).Debug("contours received")

		if out != nil {
			caption := fmt.Sprintf("%s #%d", remote, received)
			img := render.WirePreview(msg, listenWidth, listenHeight, caption)

			var buf bytes.Buffer

			if err := jpeg.Encode(&buf, img, nil); err != nil {
				return fmt.Errorf("error encoding preview: %w", err)
			}

			out.UpdateJPEG(buf.Bytes())
		}

		return nil
	}

	onBad := func(line []byte, err error) {
		clog.WithError(err).WithField("bytes", len(line)).Warn("skipping malformed message")
	}

	err := stream.ReadMessages(ctx, conn, onMessage, onBad)

	fields := log.Fields{
		"messages": received,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}

	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		clog.WithError(err).WithFields(fields).Error("stream failed")
		return
	}

	clog.WithFields(fields).Info("sender disconnected")
}
