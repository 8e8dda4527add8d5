package trace

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestSpanLeaveIsIdempotent(t *testing.T) {
	SetBackend(BackendStderr)
	defer SetBackend(BackendNone)

	span := Enter("test", "n=%d", 1)
	span.Leave()
	assert.NotPanics(t, func() { span.Leave() })
}

func TestNoneBackendIsNoop(t *testing.T) {
	SetBackend(BackendNone)
	span := Enter("test", "")
	span.Leave()
}

func TestStatisticsAddAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatistics(reg, "server-0")

	s.Add(FilesCreated, 3)
	s.Add(FilesCreated, 2)
	s.Add(BytesWritten, 100)

	vals := s.Values()
	assert.EqualValues(t, 5, vals[FilesCreated])
	assert.EqualValues(t, 100, vals[BytesWritten])
	assert.EqualValues(t, 0, vals[FilesDeleted])
}

func TestStatisticsOrderMatchesSpec(t *testing.T) {
	s := NewStatistics(nil, "server-0")
	s.Add(FilesCreated, 1)
	s.Add(FilesDeleted, 2)
	s.Add(FilesStated, 3)
	s.Add(SyncCount, 4)
	s.Add(BytesRead, 5)
	s.Add(BytesWritten, 6)
	s.Add(BytesReceived, 7)
	s.Add(BytesSent, 8)

	assert.Equal(t, [8]uint64{1, 2, 3, 4, 5, 6, 7, 8}, s.Values())
}
