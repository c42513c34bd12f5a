package job

// State is the remote state of a worker resource. The set is open-ended and
// defined by the backend; only equality against a terminal state matters.
type State string

// States reported by the hosting API.
const (
	StateNotRunning    State = "Not running"
	StateStarting      State = "Starting"
	StateRunning       State = "Running"
	StatePartlyRunning State = "Partly running"
	StateStopping      State = "Stopping"
	StateStopped       State = "Stopped"
	StateTerminating   State = "Terminating"
	StateTerminated    State = "Terminated"
)

// Autodestroy controls whether the platform removes a worker once it exits.
type Autodestroy string

const (
	AutodestroyOff    Autodestroy = "OFF"
	AutodestroyAlways Autodestroy = "ALWAYS"
)

// Description declares an ephemeral worker service. Only the options listed
// here are recognized; decoding rejects anything else.
type Description struct {
	Image               string      `yaml:"image" json:"image"`
	Name                string      `yaml:"name" json:"name"`
	TargetNumContainers int         `yaml:"target_num_containers" json:"target_num_containers"`
	Autodestroy         Autodestroy `yaml:"autodestroy" json:"autodestroy"`
	Bindings            []Binding   `yaml:"bindings" json:"bindings,omitempty"`
	Env                 []EnvVar    `yaml:"container_envvars" json:"container_envvars,omitempty"`
	RunCommand          string      `yaml:"run_command" json:"run_command,omitempty"`
	LinkedTo            *Link       `yaml:"linked_to_service" json:"linked_to_service,omitempty"`
}

// Binding is either a mount at ContainerPath (from HostPath, from the named
// Volume, or a fresh volume when both are empty) or a reference to another
// resource whose volumes are mounted (VolumesFrom holds its URI).
// Named volumes exist only on the Docker backend; Tutum rejects them.
type Binding struct {
	HostPath      string `yaml:"host_path" json:"host_path,omitempty"`
	Volume        string `yaml:"volume" json:"volume,omitempty"`
	ContainerPath string `yaml:"container_path" json:"container_path,omitempty"`
	Rewritable    bool   `yaml:"rewritable" json:"rewritable"`
	VolumesFrom   string `yaml:"volumes_from" json:"volumes_from,omitempty"`
}

// EnvVar is one container environment variable. Order is preserved.
type EnvVar struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Link attaches the worker to another running service under an alias.
type Link struct {
	ToService string `yaml:"to_service" json:"to_service"`
	Name      string `yaml:"name" json:"name"`
}

// Handle refers to a created worker resource.
type Handle struct {
	ID    string
	URI   string
	State State
}

// Lookup returns the value of key in env and whether it was present.
func Lookup(env []EnvVar, key string) (string, bool) {
	for _, e := range env {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}
