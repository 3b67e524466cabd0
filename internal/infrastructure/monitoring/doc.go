/*
Package monitoring collects Prometheus metrics for the session host.

It tracks HTTP requests, game lifecycle events and their outcomes, the
active session gauge, session-started notifications (live or replayed),
window peer connections and collaborator operations such as log archives.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	timer := monitoring.NewTimer(metrics, "archive", "backup")
	err := archiver.Backup(key)
	timer.StopErr(err)
*/
package monitoring
