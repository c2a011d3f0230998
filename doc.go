// Package edgetwin is an edge digital-twin runtime for manufacturing
// equipment. It ingests sensor telemetry over NATS into a bounded sample
// buffer, advances a four-model physics simulation (thermal, mechanical,
// fluid, material) per active process, predicts process outcomes with a
// retrainable ML pipeline, and searches control parameters for better
// quality/cycle-time/energy trade-offs. Derived state is served over HTTP
// and a websocket stream; recommendations flow back out on a NATS control
// channel.
//
// The runtime package owns all shared state and drives four independent
// periodic loops (ingestion, physics, inference, monitoring). Shared
// snapshots follow a replace-whole-value discipline so readers never
// observe a partially updated value.
package edgetwin
