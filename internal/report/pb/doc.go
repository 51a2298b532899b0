package pb

// The wire format implemented by this package corresponds to the following
// schema (documentation only; not compiled — see wire.go):
//
//	message Measures {
//	  uint64 code_total = 1;
//	  uint64 code_matched = 2;
//	  uint64 code_complete = 3;
//	  uint64 data_total = 4;
//	  uint64 data_matched = 5;
//	  uint64 data_complete = 6;
//	  uint64 func_total = 7;
//	  uint64 func_matched = 8;
//	  uint64 unit_total = 9;
//	  uint64 unit_complete = 10;
//	}
//
//	message ItemMetadata {
//	  string demangled_name = 1;
//	  uint64 virtual_address = 2;
//	  bool has_virtual_address = 3;
//	  string source_path = 4;
//	  string language = 5;
//	  repeated string category = 6;
//	}
//
//	message Item {
//	  string name = 1;
//	  uint64 size = 2;
//	  double fuzzy_match_percent = 3;
//	  ItemMetadata metadata = 4;
//	}
//
//	message Category {
//	  string id = 1;
//	  string name = 2;
//	  Measures measures = 3;
//	}
//
//	message Unit {
//	  string name = 1;
//	  Measures measures = 2;
//	  repeated Item sections = 3;
//	  repeated Item functions = 4;
//	  map<string, string> metadata = 5;
//	}
//
//	message Header {
//	  int32 format_version = 1;
//	  Measures measures = 2;
//	  repeated Category categories = 3;
//	}
//
//	message Report {
//	  int32 format_version = 1;
//	  Measures measures = 2;
//	  repeated Category categories = 3;
//	  repeated Unit units = 4;
//	}
