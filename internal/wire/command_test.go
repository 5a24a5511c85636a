package wire_test

import (
	"testing"

	"github.com/signalnine/npubench/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestDefaultsToNoCalibration(t *testing.T) {
	r, err := wire.DecodeRequest([]byte(`{"command":"run_model","model_name":"net_a","runner_args":["-r","10"]}`))
	require.NoError(t, err)
	require.Equal(t, wire.NoCalibration, r.ExecutionTimes)
	require.False(t, r.Calibrated())
	require.Equal(t, []string{"-r", "10"}, r.RunnerArgs)
}

func TestEncodeDecodeRequest(t *testing.T) {
	in := wire.NewRunRequest("net_a", []string{"-r", "10", "-n", "0,1"})
	in.UseGolden = true
	in.ExecutionTimes = 400

	data, err := wire.EncodeRequest(in)
	require.NoError(t, err)
	require.Contains(t, string(data), `"execution_times":400`)

	out, err := wire.DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.True(t, out.Calibrated())
}

func TestEncodeRequestEmptyArgs(t *testing.T) {
	data, err := wire.EncodeRequest(wire.NewRunRequest("m", nil))
	require.NoError(t, err)
	require.Contains(t, string(data), `"runner_args":[]`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  wire.RunRequest
		want error
	}{
		{"ok", wire.RunRequest{Command: "run_model", ModelName: "net_a"}, nil},
		{"wrong command", wire.RunRequest{Command: "reboot", ModelName: "net_a"}, wire.ErrUnsupportedCommand},
		{"missing name", wire.RunRequest{Command: "run_model"}, wire.ErrMissingModelName},
		{"nested name", wire.RunRequest{Command: "run_model", ModelName: "a/b"}, wire.ErrInvalidModelName},
		{"parent dir", wire.RunRequest{Command: "run_model", ModelName: ".."}, wire.ErrInvalidModelName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	_, err := wire.DecodeRequest([]byte(`{"command":`))
	require.Error(t, err)
}
