package signature

// signatureSchema constrains signature documents before decoding. Out-of-range
// weights, bad port numbers, and unknown keys all count as a malformed source
// and push the load to the built-in defaults.
const signatureSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "hostsentry signature set",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "vm_indicators": {"$ref": "#/definitions/indicator_group"},
    "remote_indicators": {"$ref": "#/definitions/indicator_group"},
    "screen_share_indicators": {"$ref": "#/definitions/indicator_group"},
    "weights": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "bios_match": {"$ref": "#/definitions/unit"},
        "cpu_match": {"$ref": "#/definitions/unit"},
        "mac_match": {"$ref": "#/definitions/unit"},
        "process_match": {"$ref": "#/definitions/unit"},
        "port_match": {"$ref": "#/definitions/unit"},
        "session_match": {"$ref": "#/definitions/unit"},
        "gpu_match": {"$ref": "#/definitions/unit"},
        "timing_match": {"$ref": "#/definitions/unit"},
        "meeting_active": {"$ref": "#/definitions/unit"},
        "meeting_keyword": {"$ref": "#/definitions/unit"},
        "browser_present": {"$ref": "#/definitions/unit"}
      }
    },
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "vm": {"$ref": "#/definitions/unit"},
        "remote_access": {"$ref": "#/definitions/unit"},
        "screen_share": {"$ref": "#/definitions/unit"}
      }
    }
  },
  "definitions": {
    "unit": {"type": "number", "minimum": 0, "maximum": 1},
    "string_list": {"type": "array", "items": {"type": "string"}},
    "port_list": {
      "type": "array",
      "items": {"type": "integer", "minimum": 1, "maximum": 65535}
    },
    "indicator_group": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "bios_keywords": {"$ref": "#/definitions/string_list"},
        "mac_vendors": {"$ref": "#/definitions/string_list"},
        "processes": {"$ref": "#/definitions/string_list"},
        "ports": {"$ref": "#/definitions/port_list"},
        "session_keywords": {"$ref": "#/definitions/string_list"},
        "browser_processes": {"$ref": "#/definitions/string_list"},
        "browser_keywords": {"$ref": "#/definitions/string_list"}
      }
    }
  }
}`
