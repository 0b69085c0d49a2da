// Package influxdb records binding telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. A connected Client
// implements binding.Observer, turning every dispatched or dropped bridge
// event into a point in the bridge_event measurement.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "libmqtt",
//	    Bucket:  "bridge",
//	}
//
//	tel, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Close()
//
//	b, err := binding.New(eng, rt, binding.WithObserver(tel))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Points are batched according to batch_size and flush_interval.
//
// # Error Handling
//
// Writes never return errors. Batch failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb
