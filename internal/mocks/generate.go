// Package mocks provides gomock implementations of the job engine ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), "job-1").Return(rec, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/marketpulse/internal/core JobStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=artifact_store_mock.go github.com/target/marketpulse/internal/core ArtifactStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=stage_worker_mock.go github.com/target/marketpulse/internal/core StageWorker
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=answerer_mock.go github.com/target/marketpulse/internal/core Answerer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_client_mock.go github.com/target/marketpulse/internal/core ModelClient
