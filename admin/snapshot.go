// Package admin is the northbound HTTP surface SPEC_FULL.md §11 adds on top
// of the controller runtime: a liveness probe, a JSON snapshot of the live
// DPSet, and a websocket tail of datapath lifecycle/dispatcher-change events,
// served directly on net/http and gorilla/websocket.
package admin

import (
	"fmt"

	"github.com/ofswitch/controller/dpset"
)

// portDTO is the wire shape of a single switch port in a dpsetDTO snapshot.
type portDTO struct {
	PortNo uint16 `json:"port_no"`
	HWAddr string `json:"hw_addr"`
	Name   string `json:"name"`
	Config uint32 `json:"config"`
	State  uint32 `json:"state"`
}

// datapathDTO is the wire shape of one registered datapath.
type datapathDTO struct {
	DatapathID string     `json:"datapath_id"`
	RemoteAddr string     `json:"remote_addr"`
	Type       dpset.Type `json:"type"`
	NTables    uint8      `json:"n_tables"`
	Ports      []portDTO  `json:"ports"`
}

// dpsetDTO is the full /admin/dpset response body.
type dpsetDTO struct {
	Datapaths []datapathDTO `json:"datapaths"`
}

func buildSnapshot(s *dpset.DPSet) dpsetDTO {
	all := s.All()
	out := dpsetDTO{Datapaths: make([]datapathDTO, 0, len(all))}
	for id, dp := range all {
		f := dp.Features()
		var nTables uint8
		if f != nil {
			nTables = f.NTables
		}
		ports := dp.Ports()
		portDTOs := make([]portDTO, 0, len(ports))
		for _, p := range ports {
			portDTOs = append(portDTOs, portDTO{
				PortNo: p.PortNo,
				HWAddr: formatHWAddr(p.HWAddr),
				Name:   p.Name,
				Config: p.Config,
				State:  p.State,
			})
		}
		out.Datapaths = append(out.Datapaths, datapathDTO{
			DatapathID: formatDatapathID(id),
			RemoteAddr: dp.RemoteAddr(),
			Type:       s.Type(id),
			NTables:    nTables,
			Ports:      portDTOs,
		})
	}
	return out
}

func formatDatapathID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func formatHWAddr(addr [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
}
