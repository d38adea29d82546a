package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	malformedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_graph_malformed_batches_total",
		Help: "Graph updates rejected because a declared count did not match its payload.",
	})

	droppedPoses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_graph_dropped_poses_total",
		Help: "Pose records dropped because their keyframe id was unknown.",
	})

	unresolvedEndpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_graph_unresolved_endpoints_total",
		Help: "Constraint endpoints that referenced an unknown keyframe when installed.",
	})

	payloadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_graph_keyframe_payload_errors_total",
		Help: "Keyframe updates whose point payload did not match the camera resolution.",
	})
)
