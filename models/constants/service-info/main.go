package serviceInfo

import "fmt"

type ServiceInfo string

var (
	SERVICE_NAME        ServiceInfo = "Gohan Variant Store"
	SERVICE_WELCOME     ServiceInfo = "Welcome to the Gohan variant store : stage, merge and check your variant files!"
	SERVICE_DESCRIPTION ServiceInfo = "Variant load/stage/merge engine for a Bento platform node."
	SERVICE_CONTACT     ServiceInfo = "mailto:info@computationalgenomics.ca"

	SERVICE_ARTIFACT    ServiceInfo = "gohan-variantstore"
	SERVICE_VERSION     ServiceInfo = "0.1.0"
	SERVICE_TYPE_NO_VER ServiceInfo = ServiceInfo(fmt.Sprintf("ca.c3g.bento:%s", SERVICE_ARTIFACT))
	SERVICE_ID          ServiceInfo = SERVICE_TYPE_NO_VER
	SERVICE_TYPE        ServiceInfo = ServiceInfo(fmt.Sprintf("%s:%s", SERVICE_TYPE_NO_VER, SERVICE_VERSION))
)
