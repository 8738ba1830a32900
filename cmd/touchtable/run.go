package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/hybridgroup/mjpeg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/swdee/go-touchtable"
	"github.com/swdee/go-touchtable/stream"
	"gocv.io/x/gocv"
)

var (
	runDevice       string
	runAddr         string
	runSettings     string
	runWidth        int
	runHeight       int
	runCPUCores     []int
	runWriteTimeout time.Duration
	runRedial       time.Duration
	runPreview      string
	runPreviewFPS   int
	runCalibrate    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track touches from a camera and stream their contours",
	Long: "Opens the camera, connects to the contour consumer and processes frames until " +
		"interrupted.  Calibration and segmentation values are loaded from the settings " +
		"file at startup and written back on exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTable(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runDevice, "device", "0", "Camera index, video file or stream URL")
	runCmd.Flags().StringVar(&runAddr, "addr", touchtable.DefaultStreamAddr, "Address of the contour consumer")
	runCmd.Flags().StringVar(&runSettings, "settings", "data.json", "Settings file holding calibration and parameters")
	runCmd.Flags().IntVar(&runWidth, "width", touchtable.DefaultWidth, "Processing frame width")
	runCmd.Flags().IntVar(&runHeight, "height", touchtable.DefaultHeight, "Processing frame height")
	runCmd.Flags().IntSliceVar(&runCPUCores, "cpu-cores", nil, "Pin the processing loop to these CPU cores")
	runCmd.Flags().DurationVar(&runWriteTimeout, "write-timeout", 0, "Timeout of each stream write, 0 waits indefinitely")
	runCmd.Flags().DurationVar(&runRedial, "redial", 0, "Interval between reconnect attempts, 0 connects once at startup only")
	runCmd.Flags().StringVar(&runPreview, "preview", "", "Serve an MJPEG preview of the result image on this address")
	runCmd.Flags().IntVar(&runPreviewFPS, "preview-fps", 15, "Frame rate of the preview")
	runCmd.Flags().BoolVar(&runCalibrate, "calibrate", false, "Start in calibration mode")
	rootCmd.AddCommand(runCmd)
}

func runTable(ctx context.Context) error {

	settings, err := touchtable.LoadSettings(runSettings, touchtable.DefaultParams())

	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.WithField("path", runSettings).Info("no settings file, using defaults")
	case err != nil:
		logger.WithError(err).Warn("ignoring settings file")
		settings = touchtable.Settings{Params: touchtable.DefaultParams()}
	}

	cfg := touchtable.DefaultConfig()
	cfg.Width = runWidth
	cfg.Height = runHeight
	cfg.Params = settings.Params
	cfg.CPUCores = runCPUCores
	cfg.WriteTimeout = runWriteTimeout

	grabber, err := touchtable.OpenGrabber(runDevice, runWidth, runHeight)

	if err != nil {
		return err
	}

	defer grabber.Close()

	emitter := stream.NewEmitter(runWidth, runHeight, runWriteTimeout)

	p, err := touchtable.New(cfg, grabber, emitter)

	if err != nil {
		return fmt.Errorf("error creating pipeline: %w", err)
	}

	defer p.Close()

	if settings.Points != nil {
		if err := p.SetCalibration(settings.Points); err != nil {
			logger.WithError(err).Warn("ignoring stored calibration")
		}
	}

	p.SetCalibrationMode(runCalibrate)

	// a failed connect leaves the stream disabled unless --redial is set
	p.RedialStream(ctx, runAddr)

	if err := p.Start(ctx); err != nil {
		return err
	}

	if runRedial > 0 {
		go redialLoop(ctx, p)
	}

	if runPreview != "" {
		mjpegStream := mjpeg.NewStream()
		go servePreview(ctx, runPreview, mjpegStream)
		go previewLoop(ctx, p, mjpegStream)
	}

	<-ctx.Done()

	if err := p.Stop(); err != nil && !errors.Is(err, touchtable.ErrNotRunning) {
		logger.WithError(err).Warn("error stopping pipeline")
	}

	pts := p.CalibrationPoints()

	save := touchtable.Settings{
		Points: pts[:],
		Params: p.Params(),
	}

	if err := touchtable.SaveSettings(runSettings, save); err != nil {
		return err
	}

	logger.WithFields(log.Fields{
		"path":   runSettings,
		"frames": p.Frames(),
	}).Info("settings saved")

	return nil
}

// redialLoop reconnects the stream whenever the consumer has gone away
func redialLoop(ctx context.Context, p *touchtable.Pipeline) {

	ticker := time.NewTicker(runRedial)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.StreamState() == stream.Disconnected {
			p.RedialStream(ctx, runAddr)
		}
	}
}

// previewLoop renders the result image with overlays into the MJPEG stream
func previewLoop(ctx context.Context, p *touchtable.Pipeline, out *mjpeg.Stream) {

	fps := runPreviewFPS

	if fps <= 0 {
		fps = 15
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	result := gocv.NewMat()
	defer result.Close()

	canvas := gocv.NewMat()
	defer canvas.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.ResultImage(&result) {
			continue
		}

		// the mask is single channel, overlays need colour
		if result.Channels() == 1 {
			gocv.CvtColor(result, &canvas, gocv.ColorGrayToBGR)
		} else {
			result.CopyTo(&canvas)
		}

		p.Draw(&canvas)

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, canvas)

		if err != nil {
			logger.WithError(err).Error("error encoding preview")
			continue
		}

		out.UpdateJPEG(buf.GetBytes())
		buf.Close()
	}
}
