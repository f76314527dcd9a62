package containerdriver

import (
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// ContainerSpec is the fully-prepared create-spec for a replacement
// container, derived from the old container's inspected state (§4.6,
// §12's "container-spec field mapping").
type ContainerSpec struct {
	Config           *container.Config
	HostConfig       *container.HostConfig
	NetworkingConfig *network.NetworkingConfig
}

// BuildReplacementSpec derives a new container's spec from the old
// container's model plus the env computed by C5, pinning the image to
// targetRef (a digest-qualified reference) and stamping lastUpdatedAt.
//
// Grounded on the dockhand client's prepareNewContainerConfig, generalized
// to the explicit field-by-field mapping described in §12: mounts split
// by type, a cleaned host-config, per-network endpoint settings, and
// optional keys included only when the old container actually set them.
func BuildReplacementSpec(old model.Container, targetRef string, env []string, now time.Time) ContainerSpec {
	cfg := &container.Config{
		Image:  targetRef,
		Labels: labelsWithUpdateStamp(old.Labels, now),
	}
	if len(env) > 0 {
		cfg.Env = env
	}
	if ports := exposedPorts(old); len(ports) > 0 {
		cfg.ExposedPorts = ports
	}

	hostCfg := &container.HostConfig{
		Mounts: mountsOf(old),
		RestartPolicy: container.RestartPolicy{
			Name:              container.RestartPolicyMode(old.RestartPolicy.Name),
			MaximumRetryCount: old.RestartPolicy.MaximumRetryCount,
		},
		Resources: container.Resources{
			NanoCPUs: old.Resources.NanoCPUs,
			Memory:   old.Resources.MemoryBytes,
		},
	}
	if bindings := portBindings(old); len(bindings) > 0 {
		hostCfg.PortBindings = bindings
	}

	var netCfg *network.NetworkingConfig
	if len(old.Networks) > 0 {
		endpoints := make(map[string]*network.EndpointSettings, len(old.Networks))
		for name, attach := range old.Networks {
			endpoints[name] = &network.EndpointSettings{
				NetworkID: attach.NetworkID,
				Aliases:   attach.Aliases,
			}
		}
		netCfg = &network.NetworkingConfig{EndpointsConfig: endpoints}
	}

	return ContainerSpec{Config: cfg, HostConfig: hostCfg, NetworkingConfig: netCfg}
}

// labelsWithUpdateStamp copies old's labels and appends/overwrites the
// lastUpdatedAt label (§4.6).
func labelsWithUpdateStamp(old map[string]string, now time.Time) map[string]string {
	out := make(map[string]string, len(old)+1)
	for k, v := range old {
		out[k] = v
	}
	out["lastUpdatedAt"] = now.UTC().Format(time.RFC3339)
	return out
}

func mountsOf(c model.Container) []mount.Mount {
	out := make([]mount.Mount, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		entry := mount.Mount{
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		}
		switch m.Type {
		case "bind":
			entry.Type = mount.TypeBind
		case "volume":
			entry.Type = mount.TypeVolume
			if m.VolumeNamed != "" {
				entry.Source = m.VolumeNamed
			}
		case "tmpfs":
			entry.Type = mount.TypeTmpfs
			entry.Source = ""
		default:
			continue
		}
		out = append(out, entry)
	}
	return out
}

func exposedPorts(c model.Container) nat.PortSet {
	if len(c.Ports) == 0 {
		return nil
	}
	set := nat.PortSet{}
	for _, p := range c.Ports {
		port, err := nat.NewPort(p.Protocol, p.ContainerPort)
		if err != nil {
			continue
		}
		set[port] = struct{}{}
	}
	return set
}

func portBindings(c model.Container) nat.PortMap {
	if len(c.Ports) == 0 {
		return nil
	}
	bindings := nat.PortMap{}
	for _, p := range c.Ports {
		port, err := nat.NewPort(p.Protocol, p.ContainerPort)
		if err != nil {
			continue
		}
		if p.HostPort == "" {
			continue
		}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: p.HostIP, HostPort: p.HostPort})
	}
	return bindings
}

// BackupName builds the "<name>_bak_cu_<YYYYMMDD_HHMMSS>" name used by
// STOP_OLD (§4.10) and parsed back by the prune policy. §6 specifies the
// timestamp in local time, not UTC.
func BackupName(originalName string, at time.Time) string {
	return fmt.Sprintf("%s_bak_cu_%s", originalName, at.Format("20060102_150405"))
}
