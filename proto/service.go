package proto

// ServiceName is the fully qualified HostControl service name, as used by
// the health service
const ServiceName = "host.HostControl"
