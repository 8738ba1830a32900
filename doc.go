/*
go-touchtable turns an overhead camera looking at a surface into a multi touch
input device.  Dark blobs on the surface, such as fingertips or objects, are
segmented from each camera frame, rectified through a four point perspective
calibration, tracked across frames with stable labels and streamed to a
consumer as line delimited JSON over TCP.

The Pipeline runs the per frame work on its own goroutine behind a single
lock which the consumer facing accessors share, so a UI can tune parameters,
drag calibration corners and read back results while tracking continues.

See the cmd/touchtable command for a runnable program.
*/
package touchtable
