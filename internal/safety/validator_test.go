package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRunCommand_RmRules(t *testing.T) {
	assert.Nil(t, ValidateRunCommand("rm /workspace/foo"))
	assert.NotNil(t, ValidateRunCommand("rm /"))
	assert.NotNil(t, ValidateRunCommand("rm .."))
	assert.NotNil(t, ValidateRunCommand("rm /workspace"))
	assert.NotNil(t, ValidateRunCommand("rm foo"))
	assert.NotNil(t, ValidateRunCommand("cmd1 && rm /etc/x"))
}

func TestValidateRunCommand_ForceKillTokens(t *testing.T) {
	assert.NotNil(t, ValidateRunCommand("kill -9 1234"))
	assert.NotNil(t, ValidateRunCommand("pkill -f server"))
	assert.NotNil(t, ValidateRunCommand("killall python"))
	assert.NotNil(t, ValidateRunCommand("nohup ./run.sh &"))
	assert.NotNil(t, ValidateRunCommand("echo ok && killall python"))
	assert.Nil(t, ValidateRunCommand("echo ok"))
}
